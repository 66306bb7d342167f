package javascript

import (
	"bufio"
	"os"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// YarnLock parses yarn.lock in both the classic (v1) and berry formats.
type YarnLock struct{}

func (y *YarnLock) Type() string              { return "yarn.lock" }
func (y *YarnLock) IncludesTransitive() bool  { return true }
func (y *YarnLock) Supports(name string) bool { return name == "yarn.lock" }

func (y *YarnLock) Parse(path string) (*deps.ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	resolved := make(map[string]string)
	format := "yarn-v1"
	current := ""

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if line[0] != ' ' {
			current = ""
			if !strings.HasSuffix(trimmed, ":") {
				continue
			}
			header := strings.TrimSuffix(trimmed, ":")
			if header == "__metadata" {
				format = "yarn-berry"
				continue
			}
			spec := strings.Trim(strings.TrimSpace(strings.Split(header, ",")[0]), `"`)
			current, _ = splitPackageSpec(spec)
			continue
		}

		if current == "" {
			continue
		}
		if v, ok := yarnVersion(trimmed); ok {
			if _, seen := resolved[current]; !seen {
				resolved[current] = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return &deps.ManifestResult{
		Type:               y.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
		LockfileVersion:    format,
	}, nil
}

// yarnVersion reads `version "1.2.3"` (classic) or `version: 1.2.3` (berry).
func yarnVersion(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "version")
	if !ok {
		return "", false
	}
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.Trim(strings.TrimSpace(rest), `"`)
	return rest, rest != ""
}
