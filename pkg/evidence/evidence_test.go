package evidence

import (
	"encoding/json"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/deps"
	"github.com/matzehuels/evidencepack/pkg/facts"
	"github.com/matzehuels/evidencepack/pkg/signal"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func nodeProfile() stack.Profile {
	return stack.Classify([]signal.Signal{
		{Kind: signal.KindManifest, Path: "package.json", Dir: ".", Name: "package.json"},
	})
}

func named(name string, r analysis.Result) analysis.Result {
	r.Analyzer = name
	return r
}

func sampleResults() []analysis.Result {
	return []analysis.Result{
		named(analyzers.NameVulnerabilities, analysis.Partial(analyzers.SecurityReport{
			Vulnerabilities: []analyzers.Finding{{Package: "lodash", Severity: "high"}},
			Summary:         analyzers.SeveritySummary{Total: 1, High: 1},
			ScannersUsed:    []string{"npm-audit"},
		}, "web: npm not installed")),
		named(analyzers.NameCodeScan, analysis.Skipped("credential snyk not configured")),
		named(analyzers.NameDependencies, analysis.OK(deps.NewReport([]deps.Ecosystem{
			{Runtime: stack.RuntimeNode, Root: ".", Total: 3, LockfilePresent: true},
		}))),
		named(analyzers.NameMetrics, analysis.OK(analyzers.MetricsReport{
			LinesOfCode: 120, Files: 4,
			Languages: map[string]analyzers.LanguageStats{"TypeScript": {}, "JavaScript": {}},
		})),
		named(analyzers.NameTests, analysis.Failed("timed out after 1s")),
	}
}

func sampleMeta() Meta {
	return Meta{
		GeneratedAt:  fixedTime,
		RunID:        "run-1",
		ToolVersion:  "v1.0.0",
		Integrations: map[string]bool{"snyk": false, "gemini": true},
	}
}

func TestAggregateSortsResults(t *testing.T) {
	m := Aggregate(nodeProfile(), sampleResults(), facts.Facts{Name: "demo"}, sampleMeta())

	want := []string{"code-scan", "dependencies", "metrics", "tests", "vulnerabilities"}
	if len(m.Results) != len(want) {
		t.Fatalf("len(Results) = %d, want %d", len(m.Results), len(want))
	}
	for i, name := range want {
		if m.Results[i].Analyzer != name {
			t.Errorf("Results[%d] = %q, want %q", i, m.Results[i].Analyzer, name)
		}
	}
	if m.Meta.BuildID != Local {
		t.Errorf("BuildID = %q, want %q", m.Meta.BuildID, Local)
	}
}

func TestAggregateDoesNotAliasInput(t *testing.T) {
	in := sampleResults()
	meta := sampleMeta()
	m := Aggregate(stack.Profile{}, in, facts.Facts{}, meta)
	if in[0].Analyzer != analyzers.NameVulnerabilities {
		t.Error("Aggregate reordered the caller's slice")
	}
	meta.Integrations["snyk"] = true
	if m.Meta.Integrations["snyk"] {
		t.Error("Aggregate shares the caller's integrations map")
	}
}

func TestModelResult(t *testing.T) {
	m := Aggregate(stack.Profile{}, sampleResults(), facts.Facts{}, sampleMeta())

	r, ok := m.Result(analyzers.NameTests)
	if !ok || r.Status != analysis.StatusFailed {
		t.Errorf("Result(tests) = %+v, %v", r, ok)
	}
	if _, ok := m.Result("nope"); ok {
		t.Error("Result(nope) found")
	}
	if _, ok := Payload[analyzers.MetricsReport](m, analyzers.NameMetrics); !ok {
		t.Error("Payload(metrics) not found")
	}
	if _, ok := Payload[analyzers.QualityReport](m, analyzers.NameTests); ok {
		t.Error("Payload(tests) should be unavailable for a failed result")
	}
}

func TestSummary(t *testing.T) {
	f := facts.Facts{Name: "demo", CommitSHA: "abc", Branch: "main", URL: "https://example.com/demo.git"}
	s := Aggregate(nodeProfile(), sampleResults(), f, sampleMeta()).Summary()

	if s.EvidencePackVersion != "1.0.0" {
		t.Errorf("EvidencePackVersion = %q", s.EvidencePackVersion)
	}
	if s.GeneratedAt != "2024-05-01T12:00:00Z" {
		t.Errorf("GeneratedAt = %q", s.GeneratedAt)
	}
	if s.Repository.Name != "demo" || s.Repository.BuildID != Local {
		t.Errorf("Repository = %+v", s.Repository)
	}
	if s.TechStack.Runtime != stack.RuntimeNode {
		t.Errorf("TechStack.Runtime = %q, want %q", s.TechStack.Runtime, stack.RuntimeNode)
	}
	if s.Metrics == nil || s.Metrics.LinesOfCode != 120 || len(s.Metrics.Languages) != 2 || s.Metrics.Languages[0] != "JavaScript" {
		t.Errorf("Metrics = %+v", s.Metrics)
	}
	if s.Dependencies == nil || s.Dependencies.Total != 3 || s.Dependencies.Lockfiles != 1 {
		t.Errorf("Dependencies = %+v", s.Dependencies)
	}
	if s.Security == nil || s.Security.Total.High != 1 || s.Security.Code != nil {
		t.Errorf("Security = %+v", s.Security)
	}
	if s.Quality != nil {
		t.Errorf("Quality = %+v, want nil for failed tests", s.Quality)
	}
	if s.Documentation.Source != "template" {
		t.Errorf("Documentation = %+v", s.Documentation)
	}

	wantRows := []AnalyzerStatus{
		{Name: "code-scan", Status: analysis.StatusSkipped, Reason: "credential snyk not configured"},
		{Name: "dependencies", Status: analysis.StatusOK},
		{Name: "metrics", Status: analysis.StatusOK},
		{Name: "tests", Status: analysis.StatusFailed, Reason: "timed out after 1s"},
		{Name: "vulnerabilities", Status: analysis.StatusPartial, Warnings: 1},
	}
	if len(s.Analyzers) != len(wantRows) {
		t.Fatalf("Analyzers = %+v", s.Analyzers)
	}
	for i, want := range wantRows {
		if s.Analyzers[i] != want {
			t.Errorf("Analyzers[%d] = %+v, want %+v", i, s.Analyzers[i], want)
		}
	}
	if !s.Integrations["gemini"] || s.Integrations["snyk"] {
		t.Errorf("Integrations = %v", s.Integrations)
	}
}

func TestSummaryEmptyProfile(t *testing.T) {
	s := Aggregate(stack.Profile{}, nil, facts.Facts{Name: "empty"}, Meta{GeneratedAt: fixedTime}).Summary()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"metrics", "dependencies", "security", "quality"} {
		if v, ok := decoded[key]; !ok || v != nil {
			t.Errorf("%s = %v, want null", key, v)
		}
	}
	if rows, ok := decoded["analyzers"].([]any); !ok || len(rows) != 0 {
		t.Errorf("analyzers = %v, want []", decoded["analyzers"])
	}
}

func TestSummaryInvalidStatus(t *testing.T) {
	bad := analysis.Result{Analyzer: "weird", Status: "exploded"}
	s := Aggregate(stack.Profile{}, []analysis.Result{bad}, facts.Facts{}, sampleMeta()).Summary()
	if s.Analyzers[0].Status != analysis.StatusFailed {
		t.Errorf("Status = %q, want failed", s.Analyzers[0].Status)
	}
}

func TestSummaryDeterministic(t *testing.T) {
	results := sampleResults()
	reversed := make([]analysis.Result, len(results))
	for i, r := range results {
		reversed[len(results)-1-i] = r
	}
	f := facts.Facts{Name: "demo"}

	a, err := json.Marshal(Aggregate(nodeProfile(), results, f, sampleMeta()).Summary())
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(Aggregate(nodeProfile(), reversed, f, sampleMeta()).Summary())
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("summaries differ:\n%s\n%s", a, b)
	}
}

func TestBuild(t *testing.T) {
	b := Aggregate(stack.Profile{}, nil, facts.Facts{}, sampleMeta()).Build()
	want := Build{
		BuildID:             Local,
		RunID:               "run-1",
		BuildTime:           "2024-05-01T12:00:00Z",
		CICD:                Local,
		ToolVersion:         "v1.0.0",
		EvidencePackVersion: PackVersion,
	}
	if b != want {
		t.Errorf("Build() = %+v, want %+v", b, want)
	}
}

func commitAt(email string, age time.Duration) analyzers.Commit {
	return analyzers.Commit{
		SHA:    "c0ffee",
		Author: analyzers.Author{Email: email},
		Date:   fixedTime.Add(-age).Format(time.RFC3339),
	}
}

func TestSummaryScores(t *testing.T) {
	day := 24 * time.Hour
	results := []analysis.Result{
		named(analyzers.NameVulnerabilities, analysis.OK(analyzers.SecurityReport{
			Summary: analyzers.SeveritySummary{Total: 1, Critical: 1},
		})),
		named(analyzers.NameTests, analysis.OK(analyzers.QualityReport{
			Tests:    &analyzers.TestResults{Total: 4, Passed: 3, Failed: 1},
			Coverage: &analyzers.Coverage{Lines: 85},
		})),
		named(analyzers.NameCommits, analysis.OK(analyzers.HistoryReport{
			TotalCommits: 4,
			RecentCommits: []analyzers.Commit{
				commitAt("a@example.com", day),
				commitAt("a@example.com", 2*day),
				commitAt("b@example.com", 10*day),
				commitAt("c@example.com", 100*day),
			},
		})),
		named(analyzers.NameDependencies, analysis.OK(deps.NewReport([]deps.Ecosystem{
			{Runtime: stack.RuntimeNode, Root: ".", LockfilePresent: true},
			{Runtime: stack.RuntimePython, Root: "api"},
		}))),
	}
	meta := sampleMeta()
	meta.CIURL = "https://ci.example.com/runs/1"
	s := Aggregate(nodeProfile(), results, facts.Facts{}, meta).Summary().Scores

	want := []struct {
		name  string
		score float64
	}{
		{DimensionSecurity, 75},
		{DimensionMaintainability, 87.5},
		{DimensionBusFactor, 62.5},
		{DimensionGovernance, 50},
		{DimensionVelocity, 25},
	}
	if len(s.Dimensions) != len(want) {
		t.Fatalf("Dimensions = %+v, want %d entries", s.Dimensions, len(want))
	}
	for i, w := range want {
		if d := s.Dimensions[i]; d.Name != w.name || d.Score != w.score {
			t.Errorf("Dimensions[%d] = %s %v, want %s %v", i, d.Name, d.Score, w.name, w.score)
		}
	}
	if math.Abs(s.FinalScore-66.875) > 0.01 {
		t.Errorf("FinalScore = %v, want 66.88", s.FinalScore)
	}
	if s.Grade != "D" {
		t.Errorf("Grade = %v, want D", s.Grade)
	}
	if s.ProductQuality != 8.3 {
		t.Errorf("ProductQuality = %v, want 8.3", s.ProductQuality)
	}
	wantNotes := []string{
		"Lowest scoring dimension: velocity (25.0/100).",
		"Good engineering foundation with some areas to improve.",
	}
	if !slices.Equal(s.Notes, wantNotes) {
		t.Errorf("Notes = %q, want %q", s.Notes, wantNotes)
	}
}

func TestSummaryScoresWithoutEvidence(t *testing.T) {
	s := Aggregate(stack.Profile{}, nil, facts.Facts{}, Meta{GeneratedAt: fixedTime}).Summary().Scores
	if len(s.Dimensions) != 1 || s.Dimensions[0].Name != DimensionGovernance || s.Dimensions[0].Score != 0 {
		t.Errorf("Dimensions = %+v, want governance only", s.Dimensions)
	}
	if s.FinalScore != 0 || s.Grade != "E" || s.ProductQuality != 1 {
		t.Errorf("Scores = %+v, want 0, E, 1", s)
	}
}
