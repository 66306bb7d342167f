package rust

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// CargoToml parses Cargo.toml manifests.
type CargoToml struct{}

func (c *CargoToml) Type() string              { return "Cargo.toml" }
func (c *CargoToml) IncludesTransitive() bool  { return false }
func (c *CargoToml) Supports(name string) bool { return strings.EqualFold(name, "cargo.toml") }

func (c *CargoToml) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, err
	}

	res := &deps.ManifestResult{
		Type:         c.Type(),
		RootPackage:  cargo.Package.Name,
		Version:      crateVersion(cargo.Package.Version),
		Description:  cargo.Package.Description,
		Dependencies: extractCargoDeps(cargo),
	}
	if cargo.Package.Edition != "" {
		res.Engines = map[string]string{"edition": cargo.Package.Edition}
	}
	return res, nil
}

func extractCargoDeps(cargo cargoFile) []deps.Dependency {
	var out []deps.Dependency
	add := func(table map[string]any, typ string) {
		names := make([]string, 0, len(table))
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, deps.Dependency{Name: name, Version: crateVersion(table[name]), Type: typ})
		}
	}
	add(cargo.Dependencies, deps.TypeRuntime)
	add(cargo.DevDependencies, deps.TypeDev)
	add(cargo.BuildDependencies, deps.TypeBuild)
	return out
}

// crateVersion reads `serde = "1.0"` and `serde = { version = "1.0" }`.
func crateVersion(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		if ver, ok := s["version"].(string); ok {
			return ver
		}
		if ws, ok := s["workspace"].(bool); ok && ws {
			return "workspace"
		}
	}
	return ""
}

type cargoFile struct {
	Package struct {
		Name        string `toml:"name"`
		Version     any    `toml:"version"`
		Description string `toml:"description"`
		Edition     string `toml:"edition"`
	} `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// CargoLock parses Cargo.lock.
type CargoLock struct{}

func (c *CargoLock) Type() string              { return "Cargo.lock" }
func (c *CargoLock) IncludesTransitive() bool  { return true }
func (c *CargoLock) Supports(name string) bool { return name == "Cargo.lock" }

func (c *CargoLock) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock struct {
		Version  int `toml:"version"`
		Packages []struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(lock.Packages))
	for _, p := range lock.Packages {
		resolved[p.Name] = p.Version
	}
	res := &deps.ManifestResult{
		Type:               c.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
	}
	if lock.Version > 0 {
		res.LockfileVersion = fmt.Sprint(lock.Version)
	}
	return res, nil
}
