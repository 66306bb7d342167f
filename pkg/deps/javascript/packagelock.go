package javascript

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

const nodeModules = "node_modules/"

// PackageLock parses package-lock.json and npm-shrinkwrap.json.
type PackageLock struct{}

func (p *PackageLock) Type() string             { return "package-lock.json" }
func (p *PackageLock) IncludesTransitive() bool { return true }
func (p *PackageLock) Supports(name string) bool {
	return name == "package-lock.json" || name == "npm-shrinkwrap.json"
}

func (p *PackageLock) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock packageLockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	resolved := make(map[string]string)
	if len(lock.Packages) > 0 {
		keys := make([]string, 0, len(lock.Packages))
		for k := range lock.Packages {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			i := strings.LastIndex(key, nodeModules)
			if i < 0 {
				continue
			}
			name := key[i+len(nodeModules):]
			nested := strings.Count(key, nodeModules) > 1
			if _, seen := resolved[name]; seen && nested {
				continue
			}
			if v := lock.Packages[key].Version; v != "" {
				resolved[name] = v
			}
		}
	} else {
		for name, d := range lock.Dependencies {
			resolved[name] = d.Version
		}
	}

	return &deps.ManifestResult{
		Type:               p.Type(),
		IncludesTransitive: true,
		RootPackage:        lock.Name,
		Version:            lock.Version,
		Resolved:           resolved,
		LockfileVersion:    fmt.Sprint(lock.LockfileVersion),
	}, nil
}

type packageLockFile struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	LockfileVersion int    `json:"lockfileVersion"`
	Packages        map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
	Dependencies map[string]struct {
		Version string `json:"version"`
	} `json:"dependencies"`
}
