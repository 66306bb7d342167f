package python

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

var depNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)`)

// Requirements parses pip requirements files. Files whose name mentions
// "dev" or "test" declare development dependencies.
type Requirements struct{}

func (r *Requirements) Type() string             { return "requirements.txt" }
func (r *Requirements) IncludesTransitive() bool { return false }

func (r *Requirements) Supports(name string) bool {
	return name == "requirements.txt" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

func (r *Requirements) Parse(path string) (*deps.ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	typ := deps.TypeRuntime
	if base := filepath.Base(path); strings.Contains(base, "dev") || strings.Contains(base, "test") {
		typ = deps.TypeDev
	}

	var out []deps.Dependency
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		if !depNameRE.MatchString(line) {
			continue
		}
		name, version := deps.SplitSpec(line)
		out = append(out, deps.Dependency{
			Name:    normalize(name),
			Version: version,
			Type:    typ,
			Spec:    line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &deps.ManifestResult{Type: r.Type(), Dependencies: out}, nil
}
