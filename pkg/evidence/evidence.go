// Package evidence aggregates analyzer results into the evidence model that
// the pack assembler renders.
//
// Aggregation is deterministic: the same profile, results, facts and meta
// always produce the same [Model], and the only timestamp in it is
// Meta.GeneratedAt.
package evidence

import (
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/facts"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

// PackVersion is the version of the pack layout and summary schema.
const PackVersion = "1.0.0"

// Local is reported for build and CI fields outside a CI system.
const Local = "local"

// Meta describes the run that produced the evidence.
type Meta struct {
	GeneratedAt time.Time
	BuildID     string
	RunID       string
	// CIURL identifies the CI system; empty means a local run.
	CIURL       string
	ToolVersion string
	// Integrations maps credential names to whether they were configured.
	Integrations map[string]bool
}

// Model is the aggregated evidence of one run. Treat it as immutable.
type Model struct {
	Profile stack.Profile
	// Results are sorted by analyzer name.
	Results []analysis.Result
	Facts   facts.Facts
	Meta    Meta
}

// Aggregate builds the model. Results are copied and sorted by analyzer
// name; every status is preserved.
func Aggregate(profile stack.Profile, results []analysis.Result, f facts.Facts, meta Meta) Model {
	rs := slices.Clone(results)
	slices.SortStableFunc(rs, func(a, b analysis.Result) int {
		return strings.Compare(a.Analyzer, b.Analyzer)
	})
	meta.GeneratedAt = meta.GeneratedAt.UTC()
	if meta.BuildID == "" {
		meta.BuildID = Local
	}
	integrations := make(map[string]bool, len(meta.Integrations))
	for k, v := range meta.Integrations {
		integrations[k] = v
	}
	meta.Integrations = integrations
	return Model{Profile: profile, Results: rs, Facts: f, Meta: meta}
}

// Result returns the result of the named analyzer.
func (m Model) Result(name string) (analysis.Result, bool) {
	i, ok := slices.BinarySearchFunc(m.Results, name, func(r analysis.Result, name string) int {
		return strings.Compare(r.Analyzer, name)
	})
	if !ok {
		return analysis.Result{}, false
	}
	return m.Results[i], true
}

// Payload returns the payload of the named analyzer when its result is
// usable and has type T.
func Payload[T any](m Model, name string) (T, bool) {
	r, ok := m.Result(name)
	if !ok {
		var zero T
		return zero, false
	}
	return analysis.Payload[T](r)
}

// Build is the content of build/build.json.
type Build struct {
	BuildID             string `json:"build_id"`
	RunID               string `json:"run_id"`
	BuildTime           string `json:"build_time"`
	CICD                string `json:"ci_cd"`
	ToolVersion         string `json:"tool_version"`
	EvidencePackVersion string `json:"evidence_pack_version"`
}

// Build returns the build metadata.
func (m Model) Build() Build {
	ci := m.Meta.CIURL
	if ci == "" {
		ci = Local
	}
	return Build{
		BuildID:             m.Meta.BuildID,
		RunID:               m.Meta.RunID,
		BuildTime:           m.Meta.GeneratedAt.Format(time.RFC3339),
		CICD:                ci,
		ToolVersion:         m.Meta.ToolVersion,
		EvidencePackVersion: PackVersion,
	}
}
