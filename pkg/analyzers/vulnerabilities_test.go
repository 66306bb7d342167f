package analyzers

import (
	"context"
	"testing"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/deps"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

func TestParseNpmAuditV7(t *testing.T) {
	data := []byte(`{
		"auditReportVersion": 2,
		"vulnerabilities": {
			"minimist": {
				"name": "minimist", "severity": "critical", "range": "<1.2.6",
				"via": [{"source": 1, "title": "Prototype Pollution", "url": "https://example.com/a", "cvss": {"score": 9.8}}]
			},
			"mkdirp": {
				"name": "mkdirp", "severity": "moderate", "range": "0.4.1 - 0.5.1",
				"via": ["minimist"]
			}
		}
	}`)
	findings, err := ParseNpmAudit(data)
	if err != nil {
		t.Fatalf("ParseNpmAudit: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("len = %d, want 2", len(findings))
	}
	if f := findings[0]; f.Package != "minimist" || f.Severity != SeverityCritical || f.CVSSScore != 9.8 || f.Title != "Prototype Pollution" {
		t.Errorf("findings[0] = %+v", f)
	}
	if f := findings[1]; f.Severity != SeverityMedium || f.Title != "" {
		t.Errorf("findings[1] = %+v", f)
	}
}

func TestParseNpmAuditAdvisories(t *testing.T) {
	data := []byte(`{"advisories": {"1065": {
		"module_name": "lodash", "severity": "high", "title": "Prototype Pollution",
		"url": "https://example.com/1065", "vulnerable_versions": "<4.17.12",
		"patched_versions": ">=4.17.12", "cves": ["CVE-2019-10744"],
		"findings": [{"version": "4.17.11"}]
	}}}`)
	findings, err := ParseNpmAudit(data)
	if err != nil {
		t.Fatalf("ParseNpmAudit: %v", err)
	}
	want := Finding{
		Package:            "lodash",
		InstalledVersion:   "4.17.11",
		VulnerableVersions: "<4.17.12",
		PatchedVersions:    ">=4.17.12",
		CVE:                "CVE-2019-10744",
		Severity:           SeverityHigh,
		Title:              "Prototype Pollution",
		URL:                "https://example.com/1065",
		Scanner:            "npm-audit",
		Type:               "dependency",
	}
	if len(findings) != 1 || findings[0] != want {
		t.Errorf("findings = %+v, want [%+v]", findings, want)
	}
}

func TestParseNpmAuditErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", "npm ERR! code ENOLOCK"},
		{"error object", `{"error": {"code": "ENOLOCK", "summary": "This command requires an existing lockfile."}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseNpmAudit([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseYarnAudit(t *testing.T) {
	data := []byte(`{"type":"info","data":"starting"}
{"type":"auditAdvisory","data":{"advisory":{"module_name":"axios","severity":"moderate","title":"SSRF","findings":[{"version":"0.21.0"}]}}}
{"type":"auditAdvisory","data":{"advisory":{"module_name":"axios","severity":"moderate","title":"SSRF","findings":[{"version":"0.21.0"}]}}}
{"type":"auditSummary","data":{"vulnerabilities":{"moderate":1}}}
`)
	findings, err := ParseYarnAudit(data)
	if err != nil {
		t.Fatalf("ParseYarnAudit: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("len = %d, want 1 (duplicates collapsed)", len(findings))
	}
	if f := findings[0]; f.Package != "axios" || f.Severity != SeverityMedium || f.Scanner != "yarn-audit" {
		t.Errorf("finding = %+v", f)
	}
}

func TestParsePipAudit(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"object", `{"dependencies": [
			{"name": "flask", "version": "0.5", "vulns": [
				{"id": "PYSEC-2019-179", "fix_versions": ["1.0"], "aliases": ["CVE-2019-1010083"], "description": "Denial of service.\nMore."}
			]},
			{"name": "requests", "version": "2.31.0", "vulns": []}
		]}`},
		{"legacy list", `[{"name": "flask", "version": "0.5", "vulns": [
			{"id": "PYSEC-2019-179", "fix_versions": ["1.0"], "aliases": ["CVE-2019-1010083"], "description": "Denial of service."}
		]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := ParsePipAudit([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParsePipAudit: %v", err)
			}
			if len(findings) != 1 {
				t.Fatalf("len = %d, want 1", len(findings))
			}
			f := findings[0]
			if f.Package != "flask" || f.CVE != "CVE-2019-1010083" || f.Severity != SeverityMedium {
				t.Errorf("finding = %+v", f)
			}
			if f.Title != "Denial of service." || f.PatchedVersions != "1.0" {
				t.Errorf("Title = %q, PatchedVersions = %q", f.Title, f.PatchedVersions)
			}
		})
	}
}

func TestParseSafety(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		severity string
		cve      string
	}{
		{
			name: "report object",
			data: `+--------------+
| deprecated   |
+--------------+
{"report_meta": {"safety_version": "2.3.5"}, "vulnerabilities": [
	{"package_name": "django", "analyzed_version": "3.2.0", "vulnerable_spec": "<3.2.19",
	 "advisory": "SQL injection in QuerySet.\nDetails.", "vulnerability_id": "55264", "CVE": "CVE-2023-31047",
	 "more_info_url": "https://data.safetycli.com/v/55264", "fixed_versions": ["3.2.19"],
	 "severity": {"cvssv3": {"base_score": 9.8}}}
]}`,
			severity: SeverityCritical,
			cve:      "CVE-2023-31047",
		},
		{
			name:     "legacy rows",
			data:     `[["django", "<3.2.19", "3.2.0", "SQL injection in QuerySet.", "55264"]]`,
			severity: SeverityMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := ParseSafety([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseSafety: %v", err)
			}
			if len(findings) != 1 {
				t.Fatalf("len = %d, want 1", len(findings))
			}
			f := findings[0]
			if f.Package != "django" || f.InstalledVersion != "3.2.0" || f.VulnerableVersions != "<3.2.19" {
				t.Errorf("finding = %+v", f)
			}
			if f.Severity != tt.severity || f.CVE != tt.cve || f.RuleID != "55264" || f.Scanner != "safety" {
				t.Errorf("finding = %+v, want severity %s and CVE %q", f, tt.severity, tt.cve)
			}
			if f.Title != "SQL injection in QuerySet." {
				t.Errorf("Title = %q", f.Title)
			}
		})
	}
	if _, err := ParseSafety([]byte("not json")); err == nil {
		t.Error("expected error for invalid output")
	}
}

func TestVulnerabilitiesWithoutAuditableEcosystems(t *testing.T) {
	upstream := analysis.OK(deps.NewReport([]deps.Ecosystem{{Runtime: stack.RuntimeGo, Root: "."}}))
	req := requestFor(t.TempDir())
	req.Upstream = &upstream

	res := NewVulnerabilities().Invoke(context.Background(), req)
	if res.Status != analysis.StatusSkipped {
		t.Errorf("Status = %q, want skipped", res.Status)
	}
}

func TestVulnerabilitiesNoLockfile(t *testing.T) {
	upstream := analysis.OK(deps.NewReport([]deps.Ecosystem{{Runtime: stack.RuntimeNode, Root: "web", PackageManager: "npm"}}))
	req := requestFor(t.TempDir())
	req.Upstream = &upstream

	res := NewVulnerabilities().Invoke(context.Background(), req)
	if res.Status != analysis.StatusFailed {
		t.Fatalf("Status = %q, want failed", res.Status)
	}
	if want := "no ecosystem could be audited: Node.js (web): no lockfile, audit needs one"; res.Reason != want {
		t.Errorf("Reason = %q, want %q", res.Reason, want)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]Finding{
		{Severity: "critical"}, {Severity: "high"}, {Severity: "moderate"},
		{Severity: "low"}, {Severity: "info"}, {Severity: "weird"},
	})
	want := SeveritySummary{Total: 6, Critical: 1, High: 1, Medium: 1, Low: 1, Info: 2}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
	if sum := got.Add(want); sum.Total != 12 || sum.Info != 4 {
		t.Errorf("Add = %+v", sum)
	}
}

func TestSeverityFromCVSS(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.8, SeverityCritical},
		{9.0, SeverityCritical},
		{7.5, SeverityHigh},
		{4.0, SeverityMedium},
		{2.1, SeverityLow},
		{0, SeverityInfo},
	}
	for _, tt := range tests {
		if got := SeverityFromCVSS(tt.score); got != tt.want {
			t.Errorf("SeverityFromCVSS(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
