package analyzers

import (
	"context"
	"fmt"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/deps"
	"github.com/matzehuels/evidencepack/pkg/deps/golang"
	"github.com/matzehuels/evidencepack/pkg/deps/javascript"
	"github.com/matzehuels/evidencepack/pkg/deps/python"
	"github.com/matzehuels/evidencepack/pkg/deps/rust"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

// Dependencies inventories declared and locked dependencies for every
// ecosystem root of every supported runtime.
type Dependencies struct {
	Languages []*deps.Language
}

// NewDependencies returns the dependencies analyzer for Node.js, Python, Go
// and Rust.
func NewDependencies() *Dependencies {
	return &Dependencies{Languages: []*deps.Language{
		javascript.Language,
		python.Language,
		golang.Language,
		rust.Language,
	}}
}

func (d *Dependencies) Info() analysis.Info {
	runtimes := make([]string, len(d.Languages))
	for i, l := range d.Languages {
		runtimes[i] = l.Runtime
	}
	return analysis.Info{Name: NameDependencies, Runtimes: runtimes}
}

func (d *Dependencies) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	var (
		ecosystems []deps.Ecosystem
		warnings   []string
	)
	for _, lang := range d.Languages {
		for _, root := range rootsOf(req.Profile, lang.Runtime) {
			if err := ctx.Err(); err != nil {
				return analysis.Failed(err.Error())
			}
			pm, _ := req.Profile.PackageManagerAt(lang.Runtime, root)
			eco, errs := deps.Scan(req.RepoPath, root, lang, pm)
			for _, err := range errs {
				warnings = append(warnings, err.Error())
			}
			if len(eco.Manifests) > 0 {
				ecosystems = append(ecosystems, eco)
			}
		}
	}

	if len(ecosystems) == 0 {
		if len(warnings) > 0 {
			return analysis.Failedf("no manifest could be parsed: %s", warnings[0])
		}
		return analysis.Failed("no dependency manifests found")
	}
	report := deps.NewReport(ecosystems)
	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

// rootsOf returns the ecosystem roots of runtime, or the repository root
// when the runtime was detected without recorded roots.
func rootsOf(p stack.Profile, runtime string) []string {
	if !p.HasAnyRuntime(runtime) {
		return nil
	}
	if roots := p.RootsFor(runtime); len(roots) > 0 {
		return roots
	}
	return []string{"."}
}

// ecosystemLabel names an ecosystem in warnings.
func ecosystemLabel(e deps.Ecosystem) string {
	if e.Root == "." || e.Root == "" {
		return e.Runtime
	}
	return fmt.Sprintf("%s (%s)", e.Runtime, e.Root)
}
