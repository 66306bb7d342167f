package javascript

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// PnpmLock parses pnpm-lock.yaml.
type PnpmLock struct{}

func (p *PnpmLock) Type() string              { return "pnpm-lock.yaml" }
func (p *PnpmLock) IncludesTransitive() bool  { return true }
func (p *PnpmLock) Supports(name string) bool { return name == "pnpm-lock.yaml" }

func (p *PnpmLock) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock pnpmLockFile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(lock.Packages))
	for key, pkg := range lock.Packages {
		name, version := parsePnpmKey(key)
		if pkg.Version != "" {
			version = pkg.Version
		}
		if name != "" && version != "" {
			resolved[name] = version
		}
	}

	res := &deps.ManifestResult{
		Type:               p.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
	}
	if lock.LockfileVersion != nil {
		res.LockfileVersion = fmt.Sprint(lock.LockfileVersion)
	}
	return res, nil
}

// parsePnpmKey handles "/name/1.0.0" (v5), "/name@1.0.0" (v6 to v8) and
// "name@1.0.0(peer@2)" (v9).
func parsePnpmKey(key string) (name, version string) {
	key = strings.TrimPrefix(key, "/")
	if i := strings.Index(key, "("); i >= 0 {
		key = key[:i]
	}
	name, version = splitPackageSpec(key)
	if version != "" {
		return name, version
	}
	i := strings.LastIndex(key, "/")
	if i <= 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

type pnpmLockFile struct {
	LockfileVersion any `yaml:"lockfileVersion"`
	Packages        map[string]struct {
		Version string `yaml:"version"`
	} `yaml:"packages"`
}
