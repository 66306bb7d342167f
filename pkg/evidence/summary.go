package evidence

import (
	"maps"
	"slices"
	"time"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/deps"
)

// Summary is the content of summary.json. Sections whose analyzer produced
// no usable result are null; the analyzer table says why.
type Summary struct {
	EvidencePackVersion string              `json:"evidence_pack_version"`
	GeneratedAt         string              `json:"generated_at"`
	Repository          Repository          `json:"repository"`
	TechStack           TechStack           `json:"tech_stack"`
	Metrics             *MetricsSummary     `json:"metrics"`
	Dependencies        *DependencySummary  `json:"dependencies"`
	Security            *SecuritySummary    `json:"security"`
	Quality             *QualitySummary     `json:"quality"`
	Documentation       DocumentationStatus `json:"documentation"`
	Scores              Scores              `json:"scores"`
	Analyzers           []AnalyzerStatus    `json:"analyzers"`
	Integrations        map[string]bool     `json:"integrations"`
}

// Repository identifies the analyzed revision.
type Repository struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch"`
	BuildID   string `json:"build_id"`
}

// TechStack is the classified stack.
type TechStack struct {
	PrimaryLanguage string            `json:"primary_language"`
	Runtime         string            `json:"runtime"`
	Runtimes        []string          `json:"runtimes"`
	Frameworks      []string          `json:"frameworks"`
	PackageManagers map[string]string `json:"package_managers"`
	HasTypeScript   bool              `json:"has_typescript"`
	IsMobile        bool              `json:"is_mobile"`
}

// MetricsSummary condenses the metrics report.
type MetricsSummary struct {
	LinesOfCode int      `json:"lines_of_code"`
	Files       int      `json:"files"`
	Languages   []string `json:"languages"`
}

// DependencySummary counts dependencies.
type DependencySummary struct {
	Total      int            `json:"total"`
	ByRuntime  map[string]int `json:"by_runtime"`
	Ecosystems int            `json:"ecosystems"`
	Lockfiles  int            `json:"lockfiles"`
}

// SecuritySummary counts findings by severity.
type SecuritySummary struct {
	Dependencies *analyzers.SeveritySummary `json:"dependencies"`
	Code         *analyzers.SeveritySummary `json:"code"`
	Total        analyzers.SeveritySummary  `json:"total"`
	Scanners     []string                   `json:"scanners"`
}

// QualitySummary holds test results and coverage.
type QualitySummary struct {
	Framework string                 `json:"test_framework,omitempty"`
	Tests     *analyzers.TestResults `json:"tests"`
	Coverage  *analyzers.Coverage    `json:"coverage"`
}

// DocumentationStatus tells whether docs were generated or templated.
type DocumentationStatus struct {
	// Source is "generated" or "template".
	Source string `json:"source"`
	Model  string `json:"model,omitempty"`
}

// AnalyzerStatus is one row of the analyzer table.
type AnalyzerStatus struct {
	Name     string          `json:"name"`
	Status   analysis.Status `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Warnings int             `json:"warnings,omitempty"`
}

// Summary builds summary.json from the model.
func (m Model) Summary() Summary {
	s := Summary{
		EvidencePackVersion: PackVersion,
		GeneratedAt:         m.Meta.GeneratedAt.Format(time.RFC3339),
		Repository: Repository{
			Name:      m.Facts.Name,
			URL:       m.Facts.URL,
			CommitSHA: m.Facts.CommitSHA,
			Branch:    m.Facts.Branch,
			BuildID:   m.Meta.BuildID,
		},
		TechStack: TechStack{
			PrimaryLanguage: m.Profile.PrimaryLanguage(),
			Runtime:         m.Profile.PrimaryRuntime(),
			Runtimes:        nonNil(m.Profile.Runtimes()),
			Frameworks:      nonNil(m.Profile.Frameworks()),
			PackageManagers: m.Profile.PackageManagers(),
			HasTypeScript:   m.Profile.HasTypeScript(),
			IsMobile:        m.Profile.IsMobile(),
		},
		Documentation: DocumentationStatus{Source: "template"},
		Analyzers:     []AnalyzerStatus{},
		Integrations:  maps.Clone(m.Meta.Integrations),
	}
	if s.Integrations == nil {
		s.Integrations = map[string]bool{}
	}

	b := &summaryBuilder{s: &s}
	for _, r := range m.Results {
		r.Accept(b)
	}
	if s.Security != nil {
		slices.Sort(s.Security.Scanners)
	}
	s.Scores = m.scores(s)
	return s
}

// summaryBuilder folds results into a Summary.
type summaryBuilder struct {
	s *Summary
}

func (b *summaryBuilder) VisitOK(r analysis.Result) {
	b.row(r)
	b.absorb(r.Payload)
}

func (b *summaryBuilder) VisitPartial(r analysis.Result) {
	b.row(r)
	b.absorb(r.Payload)
}

func (b *summaryBuilder) VisitFailed(r analysis.Result) { b.row(r) }

func (b *summaryBuilder) VisitSkipped(r analysis.Result) { b.row(r) }

func (b *summaryBuilder) row(r analysis.Result) {
	status := r.Status
	if !status.Valid() {
		status = analysis.StatusFailed
	}
	b.s.Analyzers = append(b.s.Analyzers, AnalyzerStatus{
		Name:     r.Analyzer,
		Status:   status,
		Reason:   r.Reason,
		Warnings: len(r.Warnings),
	})
}

func (b *summaryBuilder) absorb(payload any) {
	switch p := payload.(type) {
	case analyzers.MetricsReport:
		langs := slices.Sorted(maps.Keys(p.Languages))
		b.s.Metrics = &MetricsSummary{LinesOfCode: p.LinesOfCode, Files: p.Files, Languages: langs}
	case deps.Report:
		ds := &DependencySummary{
			Total:      p.TotalDependencies,
			ByRuntime:  p.Totals(),
			Ecosystems: len(p.Ecosystems),
		}
		for _, e := range p.Ecosystems {
			if e.LockfilePresent {
				ds.Lockfiles++
			}
		}
		b.s.Dependencies = ds
	case analyzers.SecurityReport:
		sec := b.security()
		sum := p.Summary
		sec.Dependencies = &sum
		sec.Total = sec.Total.Add(sum)
		sec.Scanners = append(sec.Scanners, p.ScannersUsed...)
	case analyzers.CodeScanReport:
		sec := b.security()
		sum := p.Summary
		sec.Code = &sum
		sec.Total = sec.Total.Add(sum)
		sec.Scanners = append(sec.Scanners, p.Scanner)
	case analyzers.QualityReport:
		b.s.Quality = &QualitySummary{Framework: p.Framework, Tests: p.Tests, Coverage: p.Coverage}
	case analyzers.DocsReport:
		b.s.Documentation = DocumentationStatus{Source: "generated", Model: p.Model}
	}
}

func (b *summaryBuilder) security() *SecuritySummary {
	if b.s.Security == nil {
		b.s.Security = &SecuritySummary{Scanners: []string{}}
	}
	return b.s.Security
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
