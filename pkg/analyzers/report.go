package analyzers

import (
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// MetricsReport is the payload of the metrics analyzer.
type MetricsReport struct {
	LinesOfCode  int                      `json:"lines_of_code"`
	Files        int                      `json:"files"`
	Languages    map[string]LanguageStats `json:"languages"`
	BlankLines   int                      `json:"blank_lines"`
	CommentLines int                      `json:"comment_lines"`
	// Method is "cloc" or "manual".
	Method string `json:"method"`
}

// LanguageStats counts lines for one language.
type LanguageStats struct {
	Files   int `json:"files"`
	Lines   int `json:"lines"`
	Blank   int `json:"blank"`
	Comment int `json:"comment"`
}

// HistoryReport is the payload of the commits analyzer.
type HistoryReport struct {
	TotalCommits  int      `json:"total_commits"`
	RecentCommits []Commit `json:"recent_commits"`
	Tags          []string `json:"tags"`
	Branches      []string `json:"branches"`
}

// Commit is one entry of the change history.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  Author `json:"author"`
	Date    string `json:"date"`
}

// Author identifies a commit author.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DependencyReport is the payload of the dependencies analyzer.
type DependencyReport = deps.Report

// Severity levels, most severe first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding is one vulnerability or code issue.
type Finding struct {
	Package            string  `json:"package,omitempty"`
	InstalledVersion   string  `json:"installed_version,omitempty"`
	VulnerableVersions string  `json:"vulnerable_versions,omitempty"`
	PatchedVersions    string  `json:"patched_versions,omitempty"`
	RuleID             string  `json:"rule_id,omitempty"`
	CVE                string  `json:"cve,omitempty"`
	CVSSScore          float64 `json:"cvss_score,omitempty"`
	Severity           string  `json:"severity"`
	Title              string  `json:"title,omitempty"`
	Message            string  `json:"message,omitempty"`
	File               string  `json:"file,omitempty"`
	Line               int     `json:"line,omitempty"`
	URL                string  `json:"url,omitempty"`
	Scanner            string  `json:"scanner"`
	// Type is "dependency" or "code".
	Type string `json:"type"`
	// Root is the ecosystem root the finding belongs to.
	Root string `json:"root,omitempty"`
}

// SeveritySummary counts findings by severity.
type SeveritySummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Add merges o into s.
func (s SeveritySummary) Add(o SeveritySummary) SeveritySummary {
	return SeveritySummary{
		Total:    s.Total + o.Total,
		Critical: s.Critical + o.Critical,
		High:     s.High + o.High,
		Medium:   s.Medium + o.Medium,
		Low:      s.Low + o.Low,
		Info:     s.Info + o.Info,
	}
}

// Summarize counts findings by normalized severity.
func Summarize(findings []Finding) SeveritySummary {
	s := SeveritySummary{Total: len(findings)}
	for _, f := range findings {
		switch NormalizeSeverity(f.Severity) {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		default:
			s.Info++
		}
	}
	return s
}

// NormalizeSeverity maps scanner vocabularies onto the five levels.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low", "note":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// SeverityFromCVSS maps a CVSS base score.
func SeverityFromCVSS(score float64) string {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score >= 0.1:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

var severityRank = map[string]int{
	SeverityCritical: 0, SeverityHigh: 1, SeverityMedium: 2, SeverityLow: 3, SeverityInfo: 4,
}

// sortFindings orders by severity, then package or file, then identifier.
func sortFindings(fs []Finding) {
	slices.SortStableFunc(fs, func(a, b Finding) int {
		if c := severityRank[a.Severity] - severityRank[b.Severity]; c != 0 {
			return c
		}
		if c := strings.Compare(a.Package+a.File, b.Package+b.File); c != 0 {
			return c
		}
		if c := a.Line - b.Line; c != 0 {
			return c
		}
		return strings.Compare(a.RuleID+a.CVE+a.Title, b.RuleID+b.CVE+b.Title)
	})
}

// SecurityReport is the payload of the vulnerabilities analyzer.
type SecurityReport struct {
	Vulnerabilities []Finding       `json:"vulnerabilities"`
	Summary         SeveritySummary `json:"summary"`
	ScannersUsed    []string        `json:"scanners_used"`
	// PackageManagers maps ecosystem root to the package manager scanned.
	PackageManagers map[string]string `json:"package_managers,omitempty"`
}

// CodeScanReport is the payload of the code-scan analyzer.
type CodeScanReport struct {
	Findings []Finding       `json:"findings"`
	Summary  SeveritySummary `json:"summary"`
	Scanner  string          `json:"scanner"`
}

// QualityReport is the payload of the tests analyzer.
type QualityReport struct {
	Framework string       `json:"test_framework,omitempty"`
	Tests     *TestResults `json:"test_results,omitempty"`
	Coverage  *Coverage    `json:"coverage,omitempty"`
	Note      string       `json:"note,omitempty"`
}

// TestResults summarizes one test run.
type TestResults struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	// Duration is in seconds.
	Duration float64 `json:"duration"`
}

// Coverage holds percentages in [0,100].
type Coverage struct {
	Lines      float64 `json:"lines"`
	Statements float64 `json:"statements"`
	Functions  float64 `json:"functions"`
	Branches   float64 `json:"branches"`
	// Source is the report file the numbers were read from.
	Source string `json:"source"`
}

// DocsReport is the payload of the docs analyzer. Empty fields were not
// generated.
type DocsReport struct {
	Model        string `json:"model"`
	Readme       string `json:"readme,omitempty"`
	Runbook      string `json:"runbook,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	C4Context    string `json:"c4_context,omitempty"`
	C4Container  string `json:"c4_container,omitempty"`
	Sequence     string `json:"sequence,omitempty"`
}
