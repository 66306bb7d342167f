package analyzers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// CodeScan runs Snyk Code static analysis. It needs the snyk credential,
// which reaches the scanner only through its environment.
type CodeScan struct {
	// Snyk is the snyk executable name.
	Snyk string
}

// NewCodeScan returns the code-scan analyzer.
func NewCodeScan() *CodeScan { return &CodeScan{Snyk: "snyk"} }

func (c *CodeScan) Info() analysis.Info {
	return analysis.Info{Name: NameCodeScan, Generic: true, Credential: config.CredSnyk}
}

func (c *CodeScan) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	token, ok := req.Credentials.Get(config.CredSnyk)
	if !ok {
		return analysis.Skipped("credential " + config.CredSnyk + " not configured")
	}
	out, err := tool.Run(ctx, tool.Command{
		Name: c.Snyk,
		Args: []string{"code", "test", "--json"},
		Dir:  req.RepoPath,
		Env:  []string{"SNYK_TOKEN=" + token},
		// 1 means issues were found.
		OKCodes: []int{1},
	})
	if err != nil {
		if errors.Is(err, tool.ErrNotInstalled) {
			return analysis.Failedf("%s not installed", c.Snyk)
		}
		return analysis.Failedf("snyk code test: %v", err)
	}

	findings, err := ParseSARIF(out.Stdout, "snyk-code")
	if err != nil {
		return analysis.Failed(err.Error())
	}
	sortFindings(findings)
	return analysis.OK(CodeScanReport{
		Findings: findings,
		Summary:  Summarize(findings),
		Scanner:  "snyk-code",
	})
}

type sarifLog struct {
	Runs []struct {
		Tool struct {
			Driver struct {
				Rules []sarifRule `json:"rules"`
			} `json:"driver"`
		} `json:"tool"`
		Results []sarifResult `json:"results"`
	} `json:"runs"`
}

type sarifRule struct {
	ID               string `json:"id"`
	ShortDescription struct {
		Text string `json:"text"`
	} `json:"shortDescription"`
	HelpURI              string `json:"helpUri"`
	DefaultConfiguration struct {
		Level string `json:"level"`
	} `json:"defaultConfiguration"`
	Properties map[string]any `json:"properties"`
}

type sarifResult struct {
	RuleID    string `json:"ruleId"`
	RuleIndex *int   `json:"ruleIndex"`
	Level     string `json:"level"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	Locations []struct {
		PhysicalLocation struct {
			ArtifactLocation struct {
				URI string `json:"uri"`
			} `json:"artifactLocation"`
			Region struct {
				StartLine int `json:"startLine"`
			} `json:"region"`
		} `json:"physicalLocation"`
	} `json:"locations"`
}

// ParseSARIF converts SARIF 2.1 results into findings. Severity comes from
// the rule's security-severity CVSS score when present, otherwise from the
// result or rule level.
func ParseSARIF(data []byte, scanner string) ([]Finding, error) {
	var doc sarifLog
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse SARIF: %w", err)
	}

	findings := []Finding{}
	for _, run := range doc.Runs {
		rules := map[string]sarifRule{}
		for _, r := range run.Tool.Driver.Rules {
			rules[r.ID] = r
		}
		for _, res := range run.Results {
			rule, ok := rules[res.RuleID]
			if !ok && res.RuleIndex != nil && *res.RuleIndex >= 0 && *res.RuleIndex < len(run.Tool.Driver.Rules) {
				rule = run.Tool.Driver.Rules[*res.RuleIndex]
			}
			f := Finding{
				RuleID:  res.RuleID,
				Title:   rule.ShortDescription.Text,
				Message: res.Message.Text,
				URL:     rule.HelpURI,
				Scanner: scanner,
				Type:    "code",
			}
			if f.RuleID == "" {
				f.RuleID = rule.ID
			}
			if len(res.Locations) > 0 {
				loc := res.Locations[0].PhysicalLocation
				f.File = loc.ArtifactLocation.URI
				f.Line = loc.Region.StartLine
			}
			f.CVSSScore, f.Severity = sarifSeverity(rule, res)
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func sarifSeverity(rule sarifRule, res sarifResult) (float64, string) {
	if score, ok := securitySeverity(rule.Properties["security-severity"]); ok {
		return score, SeverityFromCVSS(score)
	}
	level := res.Level
	if level == "" {
		level = rule.DefaultConfiguration.Level
	}
	if level == "" {
		return 0, SeverityMedium
	}
	return 0, NormalizeSeverity(level)
}

func securitySeverity(v any) (float64, bool) {
	switch s := v.(type) {
	case float64:
		return s, true
	case string:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
