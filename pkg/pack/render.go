// Package pack renders the evidence model into the fixed pack layout,
// assembles it atomically on disk with a SHA256SUMS manifest, and verifies
// existing packs.
package pack

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
)

// Pack file paths, relative to the pack root.
const (
	FileSummary      = "summary.json"
	FileDependencies = "dependencies.json"
	FileRepoFacts    = "repo_facts.json"
	FileChecksums    = "SHA256SUMS"
	FileCloc         = "metrics/cloc.json"
	FileLanguages    = "metrics/languages.json"
	FileTests        = "quality/tests.json"
	FileCoverage     = "quality/coverage-summary.json"
	FileSecurity     = "security/deps-sca.json"
	FileCommits      = "change/commits.json"
	FileChangelog    = "change/changelog.md"
	FileReadme       = "docs/README.enriched.md"
	FileRunbook      = "docs/runbook.md"
	FileArchitecture = "docs/architecture.md"
	FileC4Context    = "diagrams/c4_context.mmd"
	FileC4Container  = "diagrams/c4_container.mmd"
	FileSequence     = "diagrams/sequence.puml"
	FileBuild        = "build/build.json"
)

// Layout lists every file of a pack except SHA256SUMS, sorted.
var Layout = []string{
	FileBuild,
	FileChangelog,
	FileCommits,
	FileDependencies,
	FileC4Container,
	FileC4Context,
	FileSequence,
	FileReadme,
	FileArchitecture,
	FileRunbook,
	FileCloc,
	FileLanguages,
	FileCoverage,
	FileTests,
	FileRepoFacts,
	FileSecurity,
	FileSummary,
}

// ReasonNotRun is the envelope reason for an analyzer absent from the model.
const ReasonNotRun = "analyzer not run"

// Files maps pack-relative paths to contents.
type Files map[string][]byte

// Paths returns the file paths, sorted.
func (f Files) Paths() []string {
	return slices.Sorted(maps.Keys(f))
}

// Envelope wraps one analyzer section so that a skipped or failed analyzer
// is distinguishable from an empty result.
type Envelope struct {
	Analyzer string          `json:"analyzer"`
	Status   analysis.Status `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Data     any             `json:"data,omitempty"`
}

// envelope builds the envelope of the named analyzer. project selects the
// part of a usable payload to embed.
func envelope(m evidence.Model, name string, project func(any) any) Envelope {
	r, ok := m.Result(name)
	if !ok {
		return Envelope{Analyzer: name, Status: analysis.StatusSkipped, Reason: ReasonNotRun}
	}
	e := Envelope{Analyzer: name, Status: r.Status, Reason: r.Reason, Warnings: r.Warnings}
	if !r.Status.Valid() {
		e.Status = analysis.StatusFailed
	}
	if r.Usable() {
		e.Data = r.Payload
		if project != nil {
			e.Data = project(r.Payload)
		}
	}
	return e
}

// SecuritySection is the content of security/deps-sca.json.
type SecuritySection struct {
	Summary         analyzers.SeveritySummary `json:"summary"`
	Vulnerabilities Envelope                  `json:"dependency_scan"`
	CodeScan        Envelope                  `json:"code_scan"`
}

// Render maps the model onto the pack layout. It is a pure function: equal
// models render to equal files.
func Render(m evidence.Model) (Files, error) {
	files := Files{}
	put := func(path string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		files[path] = append(data, '\n')
		return nil
	}

	summary := m.Summary()
	security := SecuritySection{
		Vulnerabilities: envelope(m, analyzers.NameVulnerabilities, nil),
		CodeScan:        envelope(m, analyzers.NameCodeScan, nil),
	}
	if summary.Security != nil {
		security.Summary = summary.Security.Total
	}

	jsonFiles := []struct {
		path string
		v    any
	}{
		{FileSummary, summary},
		{FileDependencies, envelope(m, analyzers.NameDependencies, nil)},
		{FileRepoFacts, m.Facts},
		{FileCloc, envelope(m, analyzers.NameMetrics, nil)},
		{FileLanguages, envelope(m, analyzers.NameMetrics, func(p any) any {
			if r, ok := p.(analyzers.MetricsReport); ok {
				return r.Languages
			}
			return p
		})},
		{FileTests, envelope(m, analyzers.NameTests, func(p any) any {
			if r, ok := p.(analyzers.QualityReport); ok {
				r.Coverage = nil
				return r
			}
			return p
		})},
		{FileCoverage, envelope(m, analyzers.NameTests, func(p any) any {
			if r, ok := p.(analyzers.QualityReport); ok && r.Coverage != nil {
				return r.Coverage
			}
			return nil
		})},
		{FileSecurity, security},
		{FileCommits, envelope(m, analyzers.NameCommits, nil)},
		{FileBuild, m.Build()},
	}
	for _, f := range jsonFiles {
		if err := put(f.path, f.v); err != nil {
			return nil, err
		}
	}

	files[FileChangelog] = []byte(changelog(m))

	docs, _ := evidence.Payload[analyzers.DocsReport](m, analyzers.NameDocs)
	texts := []struct {
		path      string
		generated string
		template  func(evidence.Model) string
	}{
		{FileReadme, docs.Readme, readmeTemplate},
		{FileRunbook, docs.Runbook, runbookTemplate},
		{FileArchitecture, docs.Architecture, architectureTemplate},
		{FileC4Context, docs.C4Context, c4ContextTemplate},
		{FileC4Container, docs.C4Container, c4ContainerTemplate},
		{FileSequence, docs.Sequence, sequenceTemplate},
	}
	for _, t := range texts {
		text := t.generated
		if text == "" {
			text = t.template(m)
		}
		files[t.path] = []byte(text)
	}

	for _, p := range files.Paths() {
		if err := errors.ValidatePath(p); err != nil {
			return nil, err
		}
	}
	return files, nil
}
