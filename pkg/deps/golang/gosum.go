package golang

import (
	"bufio"
	"os"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// GoSumParser reads go.sum as the module lockfile. Each module maps to the
// last listed version that has a full module hash.
type GoSumParser struct{}

func (p *GoSumParser) Type() string              { return "go.sum" }
func (p *GoSumParser) IncludesTransitive() bool  { return true }
func (p *GoSumParser) Supports(name string) bool { return name == "go.sum" }

func (p *GoSumParser) Parse(path string) (*deps.ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	resolved := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 || strings.HasSuffix(fields[1], "/go.mod") {
			continue
		}
		resolved[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &deps.ManifestResult{
		Type:               p.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
	}, nil
}
