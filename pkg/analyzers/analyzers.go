// Package analyzers implements the evidence analyzers: code metrics, change
// history, dependency inventory, vulnerability and code scanning, test
// results, and generated documentation.
//
// Each analyzer wraps an external collaborator (cloc, git, npm audit,
// pip-audit, snyk, test runners, Gemini) behind [analysis.Analyzer] and
// normalizes its output into one of the report types in this package.
// Missing tools degrade to failed or partial results; they never abort a run.
package analyzers

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
)

// Analyzer names.
const (
	NameMetrics         = "metrics"
	NameCommits         = "commits"
	NameDependencies    = "dependencies"
	NameVulnerabilities = "vulnerabilities"
	NameCodeScan        = "code-scan"
	NameTests           = "tests"
	NameDocs            = "docs"
)

// Names lists every built-in analyzer, sorted.
var Names = []string{
	NameCodeScan, NameCommits, NameDependencies, NameDocs,
	NameMetrics, NameTests, NameVulnerabilities,
}

// Options carries collaborators that are not part of the configuration.
type Options struct {
	// Cache stores generated documentation. Nil disables caching.
	Cache cache.Cache
	Keyer cache.Keyer
	// Generator overrides the documentation generator selected by the
	// AI configuration.
	Generator Generator
	Logger    *log.Logger
}

// Defaults returns the built-in analyzers configured from cfg.
func Defaults(cfg config.Config, opts Options) []analysis.Analyzer {
	if opts.Cache == nil || cfg.NoCache {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	return []analysis.Analyzer{
		NewMetrics(),
		NewCommits(),
		NewDependencies(),
		NewVulnerabilities(),
		NewCodeScan(),
		NewTests(cfg.RunTests),
		NewDocs(DocsOptions{
			Provider:  cfg.AI.Provider,
			Model:     cfg.AI.Model,
			Language:  cfg.Language,
			Cache:     opts.Cache,
			Keyer:     opts.Keyer,
			TTL:       cfg.Cache.TTL,
			Generator: opts.Generator,
		}),
	}
}
