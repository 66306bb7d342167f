package analyzers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/signal"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// Metrics counts lines of code per language, preferring cloc and falling
// back to a built-in counter.
type Metrics struct {
	// Cloc is the cloc executable name.
	Cloc string
}

// NewMetrics returns the metrics analyzer.
func NewMetrics() *Metrics { return &Metrics{Cloc: "cloc"} }

func (m *Metrics) Info() analysis.Info {
	return analysis.Info{Name: NameMetrics, Generic: true}
}

func (m *Metrics) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	var warnings []string
	if tool.Available(m.Cloc) {
		report, err := m.runCloc(ctx, req.RepoPath)
		if err == nil {
			return analysis.OK(report)
		}
		if ctx.Err() != nil {
			return analysis.Failed(ctx.Err().Error())
		}
		warnings = append(warnings, fmt.Sprintf("cloc failed, using built-in counter: %v", err))
	}

	report, err := CountLines(ctx, req.RepoPath)
	if err != nil {
		return analysis.Failedf("count lines: %v", err)
	}
	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

func (m *Metrics) runCloc(ctx context.Context, dir string) (MetricsReport, error) {
	out, err := tool.Run(ctx, tool.Command{
		Name: m.Cloc,
		Args: []string{"--json", "--quiet", "--exclude-dir=" + strings.Join(signal.DefaultIgnore, ","), "."},
		Dir:  dir,
	})
	if err != nil {
		return MetricsReport{}, err
	}
	return ParseCloc(out.Stdout)
}

type clocEntry struct {
	NFiles  int `json:"nFiles"`
	Blank   int `json:"blank"`
	Comment int `json:"comment"`
	Code    int `json:"code"`
}

// ParseCloc reads the output of cloc --json.
func ParseCloc(data []byte) (MetricsReport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return MetricsReport{}, fmt.Errorf("parse cloc output: %w", err)
	}
	report := MetricsReport{Languages: map[string]LanguageStats{}, Method: "cloc"}
	for lang, msg := range raw {
		if lang == "header" {
			continue
		}
		var e clocEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return MetricsReport{}, fmt.Errorf("parse cloc entry %s: %w", lang, err)
		}
		if lang == "SUM" {
			report.LinesOfCode = e.Code
			report.Files = e.NFiles
			report.BlankLines = e.Blank
			report.CommentLines = e.Comment
			continue
		}
		report.Languages[lang] = LanguageStats{Files: e.NFiles, Lines: e.Code, Blank: e.Blank, Comment: e.Comment}
	}
	return report, nil
}

type languageSyntax struct {
	name    string
	comment []string
}

var (
	hashComment  = []string{"#"}
	slashComment = []string{"//", "/*", "*"}
)

var extLanguages = map[string]languageSyntax{
	".js":    {"JavaScript", slashComment},
	".jsx":   {"JavaScript", slashComment},
	".mjs":   {"JavaScript", slashComment},
	".cjs":   {"JavaScript", slashComment},
	".ts":    {"TypeScript", slashComment},
	".tsx":   {"TypeScript", slashComment},
	".py":    {"Python", hashComment},
	".go":    {"Go", slashComment},
	".rs":    {"Rust", slashComment},
	".java":  {"Java", slashComment},
	".kt":    {"Kotlin", slashComment},
	".swift": {"Swift", slashComment},
	".rb":    {"Ruby", hashComment},
	".php":   {"PHP", slashComment},
	".cs":    {"C#", slashComment},
	".c":     {"C", slashComment},
	".h":     {"C", slashComment},
	".cpp":   {"C++", slashComment},
	".hpp":   {"C++", slashComment},
	".sh":    {"Shell", hashComment},
	".yaml":  {"YAML", hashComment},
	".yml":   {"YAML", hashComment},
	".json":  {"JSON", nil},
	".css":   {"CSS", []string{"/*", "*"}},
	".scss":  {"SCSS", slashComment},
	".html":  {"HTML", []string{"<!--"}},
	".vue":   {"Vue", slashComment},
	".sql":   {"SQL", []string{"--"}},
	".md":    {"Markdown", nil},
}

// CountLines walks dir and counts lines of known source files. Ignored and
// hidden directories are skipped. A non-empty line is a comment when it
// starts with one of the language's comment markers.
func CountLines(ctx context.Context, dir string) (MetricsReport, error) {
	report := MetricsReport{Languages: map[string]LanguageStats{}, Method: "manual"}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != dir && (strings.HasPrefix(name, ".") || slices.Contains(signal.DefaultIgnore, name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		syntax, ok := extLanguages[strings.ToLower(filepath.Ext(name))]
		if !ok {
			return nil
		}
		code, blank, comment, err := countFile(p, syntax.comment)
		if err != nil {
			return nil
		}
		s := report.Languages[syntax.name]
		s.Files++
		s.Lines += code
		s.Blank += blank
		s.Comment += comment
		report.Languages[syntax.name] = s

		report.Files++
		report.LinesOfCode += code
		report.BlankLines += blank
		report.CommentLines += comment
		return nil
	})
	return report, err
}

func countFile(p string, markers []string) (code, blank, comment int, err error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			blank++
		case hasAnyPrefix(line, markers):
			comment++
		default:
			code++
		}
	}
	return code, blank, comment, sc.Err()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
