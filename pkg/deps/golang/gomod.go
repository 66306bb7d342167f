package golang

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// GoModParser parses go.mod files. Requirements marked "// indirect" are
// reported with type indirect.
type GoModParser struct{}

func (p *GoModParser) Type() string              { return "go.mod" }
func (p *GoModParser) IncludesTransitive() bool  { return false }
func (p *GoModParser) Supports(name string) bool { return name == "go.mod" }

func (p *GoModParser) Parse(path string) (*deps.ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mod, err := parseGoModFile(f)
	if err != nil {
		return nil, err
	}

	res := &deps.ManifestResult{
		Type:         p.Type(),
		RootPackage:  mod.module,
		Dependencies: mod.requires,
	}
	if mod.goVersion != "" {
		res.Engines = map[string]string{"go": mod.goVersion}
	}
	return res, nil
}

type goMod struct {
	module    string
	goVersion string
	requires  []deps.Dependency
}

func parseGoModFile(r io.Reader) (goMod, error) {
	var mod goMod
	seen := make(map[string]bool)
	inRequire := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "module "); ok {
			mod.module = strings.Trim(strings.TrimSpace(rest), `"`)
			continue
		}
		if rest, ok := strings.CutPrefix(line, "go "); ok {
			mod.goVersion = strings.TrimSpace(rest)
			continue
		}

		if strings.HasPrefix(line, "require (") || line == "require(" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}

		// Single-line require
		if strings.HasPrefix(line, "require ") && !strings.Contains(line, "(") {
			line = strings.TrimPrefix(line, "require ")
		} else if !inRequire {
			continue
		}

		if dep, ok := parseRequireLine(line); ok && !seen[dep.Name] {
			seen[dep.Name] = true
			mod.requires = append(mod.requires, dep)
		}
	}

	return mod, scanner.Err()
}

func parseRequireLine(line string) (deps.Dependency, bool) {
	typ := deps.TypeRuntime
	if idx := strings.Index(line, "//"); idx != -1 {
		if strings.Contains(line[idx:], "indirect") {
			typ = deps.TypeIndirect
		}
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return deps.Dependency{}, false
	}
	return deps.Dependency{
		Name:    fields[0],
		Version: fields[1],
		Type:    typ,
		Spec:    fields[0] + " " + fields[1],
	}, true
}
