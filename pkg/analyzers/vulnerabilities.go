package analyzers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/deps"
	"github.com/matzehuels/evidencepack/pkg/stack"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// Vulnerabilities audits dependencies with the package manager's audit
// command (npm, pnpm, yarn) or with pip-audit or safety. It consumes the
// dependency inventory to find ecosystem roots and installed versions.
type Vulnerabilities struct{}

// NewVulnerabilities returns the vulnerabilities analyzer.
func NewVulnerabilities() *Vulnerabilities { return &Vulnerabilities{} }

func (v *Vulnerabilities) Info() analysis.Info {
	return analysis.Info{
		Name:      NameVulnerabilities,
		Runtimes:  []string{stack.RuntimeNode, stack.RuntimePython},
		DependsOn: NameDependencies,
	}
}

// auditor runs one audit tool against one ecosystem root.
type auditor struct {
	scanner string
	command tool.Command
	parse   func([]byte) ([]Finding, error)
}

func (v *Vulnerabilities) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	if req.Upstream == nil {
		return analysis.Failed("dependency inventory unavailable")
	}
	inventory, ok := analysis.Payload[deps.Report](*req.Upstream)
	if !ok {
		return analysis.Failed("dependency inventory unavailable")
	}

	report := SecurityReport{
		Vulnerabilities: []Finding{},
		ScannersUsed:    []string{},
		PackageManagers: map[string]string{},
	}
	var (
		warnings []string
		attempts int
	)
	for _, eco := range inventory.Ecosystems {
		a, reason, ok := auditorFor(req.RepoPath, eco)
		if !ok {
			if reason != "" {
				warnings = append(warnings, fmt.Sprintf("%s: %s", ecosystemLabel(eco), reason))
			}
			continue
		}
		attempts++
		if err := ctx.Err(); err != nil {
			return analysis.Failed(err.Error())
		}
		out, err := tool.Run(ctx, a.command)
		if err != nil {
			if ctx.Err() != nil {
				return analysis.Failed(ctx.Err().Error())
			}
			warnings = append(warnings, fmt.Sprintf("%s: %s: %v", ecosystemLabel(eco), a.scanner, err))
			continue
		}
		findings, err := a.parse(out.Stdout)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %s: %v", ecosystemLabel(eco), a.scanner, err))
			continue
		}
		for i := range findings {
			findings[i].Root = eco.Root
			if findings[i].InstalledVersion == "" && eco.Lockfile != nil {
				findings[i].InstalledVersion = eco.Lockfile.Resolved[findings[i].Package]
			}
		}
		report.Vulnerabilities = append(report.Vulnerabilities, findings...)
		report.PackageManagers[eco.Root] = eco.PackageManager
		if !slices.Contains(report.ScannersUsed, a.scanner) {
			report.ScannersUsed = append(report.ScannersUsed, a.scanner)
		}
	}

	if attempts == 0 {
		if len(warnings) > 0 {
			return analysis.Failedf("no ecosystem could be audited: %s", strings.Join(warnings, "; "))
		}
		return analysis.Skipped("no Node.js or Python dependencies to audit")
	}
	if len(report.ScannersUsed) == 0 {
		return analysis.Failedf("all audits failed: %s", strings.Join(warnings, "; "))
	}

	slices.Sort(report.ScannersUsed)
	sortFindings(report.Vulnerabilities)
	report.Summary = Summarize(report.Vulnerabilities)
	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

// auditorFor selects the audit command for eco. It returns ok=false with a
// reason when the ecosystem cannot be audited, or an empty reason when the
// ecosystem is out of scope. Python roots use pip-audit and fall back to
// safety when pip-audit is not installed.
func auditorFor(repo string, eco deps.Ecosystem) (a auditor, reason string, ok bool) {
	var cands []auditor
	switch eco.Runtime {
	case stack.RuntimeNode:
		if !eco.LockfilePresent {
			return a, "no lockfile, audit needs one", false
		}
		switch eco.PackageManager {
		case "yarn":
			a = auditor{scanner: "yarn-audit", parse: ParseYarnAudit,
				command: tool.Command{Name: "yarn", Args: []string{"audit", "--json"}}}
		case "pnpm":
			a = auditor{scanner: "pnpm-audit", parse: ParseNpmAudit,
				command: tool.Command{Name: "pnpm", Args: []string{"audit", "--json"}}}
		default:
			a = auditor{scanner: "npm-audit", parse: ParseNpmAudit,
				command: tool.Command{Name: "npm", Args: []string{"audit", "--json"}}}
		}
		cands = []auditor{a}
	case stack.RuntimePython:
		reqs := requirementFiles(eco.Manifests)
		pipArgs := []string{"-f", "json", "--progress-spinner", "off"}
		safetyArgs := []string{"check", "--json"}
		for _, r := range reqs {
			pipArgs = append(pipArgs, "-r", r)
			safetyArgs = append(safetyArgs, "-r", r)
		}
		if len(reqs) == 0 {
			pipArgs = append(pipArgs, ".")
		}
		cands = []auditor{
			{scanner: "pip-audit", parse: ParsePipAudit,
				command: tool.Command{Name: "pip-audit", Args: pipArgs}},
			{scanner: "safety", parse: ParseSafety,
				command: tool.Command{Name: "safety", Args: safetyArgs}},
		}
	default:
		return a, "", false
	}

	i := slices.IndexFunc(cands, func(c auditor) bool { return tool.Available(c.command.Name) })
	if i < 0 {
		names := make([]string, len(cands))
		for j, c := range cands {
			names[j] = c.command.Name
		}
		return cands[0], strings.Join(names, " or ") + " not installed", false
	}
	a = cands[i]
	a.command.Dir = filepath.Join(repo, filepath.FromSlash(eco.Root))
	// Audit tools exit 1 when they find vulnerabilities; safety uses 64.
	a.command.OKCodes = []int{1, 64}
	return a, "", true
}

func requirementFiles(manifests []string) []string {
	var out []string
	for _, m := range manifests {
		base := path.Base(m)
		if strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt") {
			out = append(out, base)
		}
	}
	return out
}

// npmAdvisory is the advisory shape shared by npm 6, pnpm and yarn classic.
type npmAdvisory struct {
	ModuleName         string   `json:"module_name"`
	Severity           string   `json:"severity"`
	Title              string   `json:"title"`
	URL                string   `json:"url"`
	VulnerableVersions string   `json:"vulnerable_versions"`
	PatchedVersions    string   `json:"patched_versions"`
	CVEs               []string `json:"cves"`
	Findings           []struct {
		Version string `json:"version"`
	} `json:"findings"`
}

func (a npmAdvisory) finding(scanner string) Finding {
	f := Finding{
		Package:            a.ModuleName,
		VulnerableVersions: a.VulnerableVersions,
		PatchedVersions:    a.PatchedVersions,
		Severity:           NormalizeSeverity(a.Severity),
		Title:              a.Title,
		URL:                a.URL,
		Scanner:            scanner,
		Type:               "dependency",
	}
	if len(a.CVEs) > 0 {
		f.CVE = a.CVEs[0]
	}
	if len(a.Findings) > 0 {
		f.InstalledVersion = a.Findings[0].Version
	}
	return f
}

// npm 7+ report entry. Via holds advisory objects or names of the
// dependencies that pull the vulnerability in.
type npmVulnerability struct {
	Name     string            `json:"name"`
	Severity string            `json:"severity"`
	Range    string            `json:"range"`
	Via      []json.RawMessage `json:"via"`
}

type npmVia struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	CVSS  struct {
		Score float64 `json:"score"`
	} `json:"cvss"`
}

// ParseNpmAudit reads npm audit --json output in either the npm 7+
// "vulnerabilities" format or the npm 6 and pnpm "advisories" format.
func ParseNpmAudit(data []byte) ([]Finding, error) {
	var doc struct {
		Vulnerabilities map[string]npmVulnerability `json:"vulnerabilities"`
		Advisories      map[string]npmAdvisory      `json:"advisories"`
		Error           *struct {
			Summary string `json:"summary"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse audit output: %w", err)
	}
	if doc.Error != nil {
		return nil, fmt.Errorf("audit error: %s", doc.Error.Summary)
	}

	findings := []Finding{}
	for _, name := range sortedKeys(doc.Advisories) {
		findings = append(findings, doc.Advisories[name].finding("npm-audit"))
	}
	for _, name := range sortedKeys(doc.Vulnerabilities) {
		v := doc.Vulnerabilities[name]
		f := Finding{
			Package:            v.Name,
			VulnerableVersions: v.Range,
			Severity:           NormalizeSeverity(v.Severity),
			Scanner:            "npm-audit",
			Type:               "dependency",
		}
		if f.Package == "" {
			f.Package = name
		}
		for _, raw := range v.Via {
			var via npmVia
			if json.Unmarshal(raw, &via) != nil {
				continue
			}
			f.Title, f.URL, f.CVSSScore = via.Title, via.URL, via.CVSS.Score
			break
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ParseYarnAudit reads the newline-delimited output of yarn audit --json.
func ParseYarnAudit(data []byte) ([]Finding, error) {
	findings := []Finding{}
	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev struct {
			Type string `json:"type"`
			Data struct {
				Advisory npmAdvisory `json:"advisory"`
			} `json:"data"`
		}
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("parse yarn audit line: %w", err)
		}
		if ev.Type != "auditAdvisory" {
			continue
		}
		f := ev.Data.Advisory.finding("yarn-audit")
		key := f.Package + "|" + f.Title + "|" + f.InstalledVersion
		if seen[key] {
			continue
		}
		seen[key] = true
		findings = append(findings, f)
	}
	return findings, sc.Err()
}

type pipAuditDependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Vulns   []struct {
		ID          string   `json:"id"`
		FixVersions []string `json:"fix_versions"`
		Aliases     []string `json:"aliases"`
		Description string   `json:"description"`
	} `json:"vulns"`
}

// ParsePipAudit reads pip-audit -f json output. pip-audit reports no
// severity, so every finding is medium.
func ParsePipAudit(data []byte) ([]Finding, error) {
	var doc struct {
		Dependencies []pipAuditDependency `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		// pip-audit before 2.0 printed a bare list.
		if err := json.Unmarshal(data, &doc.Dependencies); err != nil {
			return nil, fmt.Errorf("parse pip-audit output: %w", err)
		}
	}

	findings := []Finding{}
	for _, d := range doc.Dependencies {
		for _, v := range d.Vulns {
			f := Finding{
				Package:          d.Name,
				InstalledVersion: d.Version,
				PatchedVersions:  strings.Join(v.FixVersions, ", "),
				RuleID:           v.ID,
				Severity:         SeverityMedium,
				Title:            firstLine(v.Description),
				Scanner:          "pip-audit",
				Type:             "dependency",
			}
			for _, alias := range append([]string{v.ID}, v.Aliases...) {
				if strings.HasPrefix(alias, "CVE-") {
					f.CVE = alias
					break
				}
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// safetyVulnerability is one entry of the safety 2.x JSON report.
type safetyVulnerability struct {
	PackageName     string   `json:"package_name"`
	AnalyzedVersion string   `json:"analyzed_version"`
	VulnerableSpec  string   `json:"vulnerable_spec"`
	Advisory        string   `json:"advisory"`
	VulnerabilityID string   `json:"vulnerability_id"`
	CVE             string   `json:"CVE"`
	MoreInfoURL     string   `json:"more_info_url"`
	FixedVersions   []string `json:"fixed_versions"`
	Severity        *struct {
		CVSSv3 *struct {
			BaseScore float64 `json:"base_score"`
		} `json:"cvssv3"`
	} `json:"severity"`
}

// ParseSafety reads safety check --json output: the safety 2.x report
// object or the safety 1.x list of [package, spec, version, advisory, id]
// rows. Findings without a CVSS score are medium.
func ParseSafety(data []byte) ([]Finding, error) {
	var vulns []safetyVulnerability
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var rows [][]string
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("parse safety output: %w", err)
		}
		for _, r := range rows {
			if len(r) < 5 {
				continue
			}
			vulns = append(vulns, safetyVulnerability{
				PackageName:     r[0],
				VulnerableSpec:  r[1],
				AnalyzedVersion: r[2],
				Advisory:        r[3],
				VulnerabilityID: r[4],
			})
		}
	} else {
		var doc struct {
			Vulnerabilities []safetyVulnerability `json:"vulnerabilities"`
		}
		if err := json.Unmarshal(jsonObject(data), &doc); err != nil {
			return nil, fmt.Errorf("parse safety output: %w", err)
		}
		vulns = doc.Vulnerabilities
	}

	findings := []Finding{}
	for _, v := range vulns {
		f := Finding{
			Package:            v.PackageName,
			InstalledVersion:   v.AnalyzedVersion,
			VulnerableVersions: v.VulnerableSpec,
			PatchedVersions:    strings.Join(v.FixedVersions, ", "),
			RuleID:             v.VulnerabilityID,
			CVE:                v.CVE,
			Severity:           SeverityMedium,
			Title:              firstLine(v.Advisory),
			URL:                v.MoreInfoURL,
			Scanner:            "safety",
			Type:               "dependency",
		}
		if v.Severity != nil && v.Severity.CVSSv3 != nil && v.Severity.CVSSv3.BaseScore > 0 {
			f.CVSSScore = v.Severity.CVSSv3.BaseScore
			f.Severity = SeverityFromCVSS(f.CVSSScore)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
