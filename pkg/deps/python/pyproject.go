package python

import (
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// Pyproject parses pyproject.toml. Both the PEP 621 [project] table and
// the [tool.poetry] table are read.
type Pyproject struct{}

func (p *Pyproject) Type() string              { return "pyproject.toml" }
func (p *Pyproject) IncludesTransitive() bool  { return false }
func (p *Pyproject) Supports(name string) bool { return name == "pyproject.toml" }

func (p *Pyproject) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file pyprojectFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	res := &deps.ManifestResult{
		Type:        p.Type(),
		RootPackage: file.Project.Name,
		Version:     file.Project.Version,
		Description: file.Project.Description,
	}
	poetry := file.Tool.Poetry
	if res.RootPackage == "" {
		res.RootPackage = poetry.Name
		res.Version = poetry.Version
		res.Description = poetry.Description
	}
	if len(file.Project.Scripts) > 0 {
		res.Scripts = file.Project.Scripts
	}

	for _, spec := range file.Project.Dependencies {
		res.Dependencies = append(res.Dependencies, pep508(spec, deps.TypeRuntime))
	}
	for _, group := range sortedKeys(file.Project.OptionalDependencies) {
		for _, spec := range file.Project.OptionalDependencies[group] {
			res.Dependencies = append(res.Dependencies, pep508(spec, deps.TypeOptional))
		}
	}
	for _, group := range sortedKeys(file.DependencyGroups) {
		for _, spec := range file.DependencyGroups[group] {
			if s, ok := spec.(string); ok {
				res.Dependencies = append(res.Dependencies, pep508(s, deps.TypeDev))
			}
		}
	}

	res.Dependencies = append(res.Dependencies, tableDeps(poetry.Dependencies, deps.TypeRuntime)...)
	res.Dependencies = append(res.Dependencies, tableDeps(poetry.DevDependencies, deps.TypeDev)...)
	for _, group := range sortedKeys(poetry.Group) {
		res.Dependencies = append(res.Dependencies, tableDeps(poetry.Group[group].Dependencies, deps.TypeDev)...)
	}
	return res, nil
}

func pep508(spec, typ string) deps.Dependency {
	name, version := deps.SplitSpec(spec)
	return deps.Dependency{Name: normalize(name), Version: version, Type: typ, Spec: spec}
}

// tableDeps converts a Poetry-style dependency table. The "python" entry
// is the interpreter constraint, not a package.
func tableDeps(table map[string]any, typ string) []deps.Dependency {
	var out []deps.Dependency
	for _, name := range sortedKeys(table) {
		if normalize(name) == "python" {
			continue
		}
		out = append(out, deps.Dependency{
			Name:    normalize(name),
			Version: specString(table[name]),
			Type:    typ,
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type pyprojectFile struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Description          string              `toml:"description"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		Scripts              map[string]string   `toml:"scripts"`
	} `toml:"project"`
	DependencyGroups map[string][]any `toml:"dependency-groups"`
	Tool             struct {
		Poetry struct {
			Name            string         `toml:"name"`
			Version         string         `toml:"version"`
			Description     string         `toml:"description"`
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}
