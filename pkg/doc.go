// Package pkg provides the core libraries for evidencepack.
//
// # Overview
//
// evidencepack turns a source repository into an audit evidence pack: a
// fixed directory of JSON, Markdown and diagram files describing the
// repository's stack, size, history, dependencies, security findings, test
// results and documentation, sealed by a SHA256SUMS manifest.
//
// # Architecture
//
// The data flow of one run:
//
//	Repository
//	    ↓
//	[signal] package (walk the tree, emit stack signals)
//	    ↓
//	[stack] package (classify signals into a profile)
//	    ↓
//	[analysis] package (run analyzers on a bounded worker pool)
//	    ↓
//	[evidence] package (aggregate results into one model)
//	    ↓
//	[pack] package (render, checksum and atomically publish)
//	    ↓
//	[upload] package (optional: HTTP, S3 or MongoDB)
//
// [pipeline] wires these stages together.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/matzehuels/evidencepack/pkg/config"
//	    "github.com/matzehuels/evidencepack/pkg/pipeline"
//	)
//
//	cfg := config.Default("./my-service")
//	runner := pipeline.NewRunner(nil, nil, nil)
//	result, err := runner.Run(context.Background(), cfg)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Manifest.Dir, result.Manifest.Digest)
//
// # Main Packages
//
// ## Detection
//
// [signal] - Filesystem walk producing typed signals (manifests, lockfiles,
// framework markers, language files) with relative paths.
//
// [stack] - Rule-driven classification into runtime candidates, package
// managers and frameworks. The rule table is data, not code.
//
// [facts] - Repository identity from git and CI variables.
//
// ## Analysis
//
// [analysis] - Analyzer contract, result sum type and the orchestrator that
// isolates failures, enforces timeouts and orders dependent analyzers.
//
// [analyzers] - Built-in analyzers: metrics, commit history, dependency
// parsing, vulnerability scan, code scan, tests and documentation.
//
// [deps] - Manifest and lockfile parsers per ecosystem (JavaScript, Python,
// Go, Rust).
//
// [tool] - External-process adapter with timeouts and exit-code handling.
//
// ## Output
//
// [evidence] - The aggregated evidence model and its summary projection.
//
// [pack] - Pack rendering, SHA256SUMS, atomic assembly, verification and
// zip archiving.
//
// [upload] - Publishing to HTTP endpoints, S3-compatible buckets and a
// MongoDB index.
//
// ## Infrastructure
//
// [cache] - Documentation cache with file, memory, Redis and null backends.
//
// [config] - Layered configuration and opaque credentials.
//
// [errors] - Coded errors and path validation.
//
// [observability] - Hooks for stage, analyzer, cache and HTTP events.
//
// [signal]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/signal
// [stack]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/stack
// [facts]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/facts
// [analysis]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/analysis
// [analyzers]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/analyzers
// [deps]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/deps
// [tool]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/tool
// [evidence]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/evidence
// [pack]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/pack
// [upload]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/upload
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/evidencepack/pkg/observability
package pkg
