package analyzers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/stack"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// Test frameworks.
const (
	FrameworkJest   = "jest"
	FrameworkVitest = "vitest"
	FrameworkMocha  = "mocha"
	FrameworkPytest = "pytest"

	// FrameworkUnittest runs the standard library runner when pytest is
	// not installed.
	FrameworkUnittest = "unittest"
)

var (
	unittestRan    = regexp.MustCompile(`(?m)^Ran (\d+) tests? in ([\d.]+)s`)
	unittestStatus = regexp.MustCompile(`(?m)^(OK|FAILED|NO TESTS RAN)(?: \(([^)]*)\))?\s*$`)
)

// coverageReports are tried in order, relative to the ecosystem root.
var coverageReports = []string{
	"coverage/coverage-summary.json",
	"coverage-summary.json",
	"coverage.xml",
	"coverage/cobertura-coverage.xml",
}

// Tests collects test results and coverage. Test suites are executed only
// when Run is set; existing coverage reports are always read.
type Tests struct {
	Run bool
}

// NewTests returns the tests analyzer.
func NewTests(run bool) *Tests { return &Tests{Run: run} }

func (t *Tests) Info() analysis.Info {
	return analysis.Info{
		Name:     NameTests,
		Runtimes: []string{stack.RuntimeNode, stack.RuntimePython},
	}
}

func (t *Tests) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	runtime, root := testRoot(req.Profile)
	dir := filepath.Join(req.RepoPath, filepath.FromSlash(root))

	var (
		report   QualityReport
		warnings []string
	)
	if t.Run {
		fw := detectFramework(dir, runtime)
		if fw == "" {
			warnings = append(warnings, "no supported test framework detected")
		} else {
			report.Framework = fw
			results, err := runTests(ctx, dir, fw)
			if err != nil {
				if ctx.Err() != nil {
					return analysis.Failed(ctx.Err().Error())
				}
				warnings = append(warnings, fmt.Sprintf("%s: %v", fw, err))
			} else {
				report.Tests = results
			}
		}
	}

	cov, err := FindCoverage(dir)
	if err != nil {
		warnings = append(warnings, err.Error())
	}
	if cov != nil {
		cov.Source = filepath.ToSlash(filepath.Join(root, cov.Source))
		report.Coverage = cov
	}

	if report.Tests == nil && report.Coverage == nil {
		if len(warnings) > 0 {
			return analysis.Failed(strings.Join(warnings, "; "))
		}
		return analysis.Skipped("test execution disabled and no coverage report found")
	}
	if !t.Run {
		report.Note = "test execution disabled; coverage read from existing report"
	}
	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

// testRoot picks the first root of the primary test-capable runtime.
func testRoot(p stack.Profile) (runtime, root string) {
	runtime = stack.RuntimeNode
	if !p.HasAnyRuntime(stack.RuntimeNode) || p.PrimaryRuntime() == stack.RuntimePython {
		runtime = stack.RuntimePython
	}
	if roots := p.RootsFor(runtime); len(roots) > 0 {
		return runtime, roots[0]
	}
	return runtime, "."
}

func detectFramework(dir, runtime string) string {
	if runtime == stack.RuntimePython {
		if tool.Available("pytest") {
			return FrameworkPytest
		}
		if pythonInterpreter() != "" {
			return FrameworkUnittest
		}
		return ""
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return ""
	}
	for _, fw := range []string{FrameworkVitest, FrameworkJest, FrameworkMocha} {
		if _, ok := pkg.DevDependencies[fw]; ok {
			return fw
		}
		if _, ok := pkg.Dependencies[fw]; ok {
			return fw
		}
	}
	return ""
}

func runTests(ctx context.Context, dir, fw string) (*TestResults, error) {
	// Test runners exit 1 when tests fail; pytest exits 5 when none were collected.
	cmd := tool.Command{Dir: dir, OKCodes: []int{1}}
	switch fw {
	case FrameworkJest:
		cmd.Name, cmd.Args = "npx", []string{"--no-install", "jest", "--json", "--silent"}
	case FrameworkVitest:
		cmd.Name, cmd.Args = "npx", []string{"--no-install", "vitest", "run", "--reporter=json"}
	case FrameworkMocha:
		cmd.Name, cmd.Args = "npx", []string{"--no-install", "mocha", "--reporter", "json"}
	case FrameworkPytest:
		f, err := os.CreateTemp("", "evidencepack-junit-*.xml")
		if err != nil {
			return nil, err
		}
		f.Close()
		defer os.Remove(f.Name())
		cmd.Name, cmd.Args = "pytest", []string{"-q", "--junitxml=" + f.Name()}
		cmd.OKCodes = []int{1, 5}
		if _, err := tool.Run(ctx, cmd); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return nil, err
		}
		return ParseJUnit(data)
	case FrameworkUnittest:
		// unittest reports on stderr and exits 5 when no tests ran.
		cmd.Name, cmd.Args = pythonInterpreter(), []string{"-m", "unittest", "discover", "-v"}
		cmd.OKCodes = []int{1, 5}
		out, err := tool.Run(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return ParseUnittest(append(out.Stderr, out.Stdout...))
	default:
		return nil, fmt.Errorf("unsupported framework %q", fw)
	}

	out, err := tool.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if fw == FrameworkMocha {
		return ParseMochaJSON(out.Stdout)
	}
	return ParseJestJSON(out.Stdout)
}

// ParseJestJSON reads the JSON report written by jest --json and by the
// vitest json reporter.
func ParseJestJSON(data []byte) (*TestResults, error) {
	var doc struct {
		NumTotalTests   int     `json:"numTotalTests"`
		NumPassedTests  int     `json:"numPassedTests"`
		NumFailedTests  int     `json:"numFailedTests"`
		NumPendingTests int     `json:"numPendingTests"`
		NumTodoTests    int     `json:"numTodoTests"`
		StartTime       float64 `json:"startTime"`
		TestResults     []struct {
			EndTime float64 `json:"endTime"`
		} `json:"testResults"`
	}
	if err := json.Unmarshal(jsonObject(data), &doc); err != nil {
		return nil, fmt.Errorf("parse test report: %w", err)
	}
	end := doc.StartTime
	for _, r := range doc.TestResults {
		end = max(end, r.EndTime)
	}
	return &TestResults{
		Total:    doc.NumTotalTests,
		Passed:   doc.NumPassedTests,
		Failed:   doc.NumFailedTests,
		Skipped:  doc.NumPendingTests + doc.NumTodoTests,
		Duration: round2((end - doc.StartTime) / 1000),
	}, nil
}

// ParseMochaJSON reads the output of mocha --reporter json.
func ParseMochaJSON(data []byte) (*TestResults, error) {
	var doc struct {
		Stats struct {
			Tests    int     `json:"tests"`
			Passes   int     `json:"passes"`
			Failures int     `json:"failures"`
			Pending  int     `json:"pending"`
			Duration float64 `json:"duration"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(jsonObject(data), &doc); err != nil {
		return nil, fmt.Errorf("parse mocha report: %w", err)
	}
	s := doc.Stats
	return &TestResults{
		Total:    s.Tests,
		Passed:   s.Passes,
		Failed:   s.Failures,
		Skipped:  s.Pending,
		Duration: round2(s.Duration / 1000),
	}, nil
}

// ParseUnittest reads the summary printed by python -m unittest: the
// "Ran N tests in Xs" line and the OK or FAILED status line after it.
func ParseUnittest(data []byte) (*TestResults, error) {
	ran := unittestRan.FindSubmatch(data)
	if ran == nil {
		return nil, fmt.Errorf("parse unittest output: no summary line")
	}
	var r TestResults
	r.Total, _ = strconv.Atoi(string(ran[1]))
	if r.Total == 0 {
		return nil, fmt.Errorf("no tests ran")
	}
	d, _ := strconv.ParseFloat(string(ran[2]), 64)
	r.Duration = round2(d)

	status := unittestStatus.FindSubmatch(data)
	if status == nil {
		return nil, fmt.Errorf("parse unittest output: no status line")
	}
	for _, part := range strings.Split(string(status[2]), ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "failures", "errors", "unexpected successes":
			r.Failed += n
		case "skipped":
			r.Skipped += n
		}
	}
	r.Passed = max(r.Total-r.Failed-r.Skipped, 0)
	return &r, nil
}

// pythonInterpreter returns the first Python interpreter on PATH.
func pythonInterpreter() string {
	for _, name := range []string{"python3", "python"} {
		if tool.Available(name) {
			return name
		}
	}
	return ""
}

type junitSuite struct {
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     float64      `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

// ParseJUnit reads a JUnit XML report with either a testsuites or a
// testsuite root element.
func ParseJUnit(data []byte) (*TestResults, error) {
	var root struct {
		XMLName xml.Name
		junitSuite
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse junit report: %w", err)
	}
	var suites []junitSuite
	switch root.XMLName.Local {
	case "testsuites":
		suites = root.Suites
	case "testsuite":
		suites = []junitSuite{root.junitSuite}
	default:
		return nil, fmt.Errorf("parse junit report: unexpected root element %q", root.XMLName.Local)
	}

	var r TestResults
	for _, s := range suites {
		r.Total += s.Tests
		r.Failed += s.Failures + s.Errors
		r.Skipped += s.Skipped
		r.Duration += s.Time
	}
	r.Passed = max(r.Total-r.Failed-r.Skipped, 0)
	r.Duration = round2(r.Duration)
	return &r, nil
}

// FindCoverage reads the first coverage report found under dir. It returns
// nil without error when there is none. Coverage.Source is relative to dir.
func FindCoverage(dir string) (*Coverage, error) {
	for _, rel := range coverageReports {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		var cov *Coverage
		if strings.HasSuffix(rel, ".xml") {
			cov, err = ParseCobertura(data)
		} else {
			cov, err = ParseIstanbulSummary(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		cov.Source = rel
		return cov, nil
	}
	return nil, nil
}

// ParseIstanbulSummary reads an istanbul json-summary report.
func ParseIstanbulSummary(data []byte) (*Coverage, error) {
	type pct struct {
		Pct float64 `json:"pct"`
	}
	var doc struct {
		Total *struct {
			Lines      pct `json:"lines"`
			Statements pct `json:"statements"`
			Functions  pct `json:"functions"`
			Branches   pct `json:"branches"`
		} `json:"total"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse coverage summary: %w", err)
	}
	if doc.Total == nil {
		return nil, fmt.Errorf("parse coverage summary: missing total")
	}
	t := doc.Total
	return &Coverage{
		Lines:      round2(t.Lines.Pct),
		Statements: round2(t.Statements.Pct),
		Functions:  round2(t.Functions.Pct),
		Branches:   round2(t.Branches.Pct),
	}, nil
}

// ParseCobertura reads the totals of a Cobertura XML report, as written by
// coverage.py and istanbul.
func ParseCobertura(data []byte) (*Coverage, error) {
	var doc struct {
		XMLName    xml.Name `xml:"coverage"`
		LineRate   float64  `xml:"line-rate,attr"`
		BranchRate float64  `xml:"branch-rate,attr"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cobertura report: %w", err)
	}
	lines := round2(doc.LineRate * 100)
	return &Coverage{
		Lines:      lines,
		Statements: lines,
		Branches:   round2(doc.BranchRate * 100),
	}, nil
}

// jsonObject trims output printed around a JSON document by npm scripts.
func jsonObject(data []byte) []byte {
	s := string(data)
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return data
	}
	return data[start : end+1]
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
