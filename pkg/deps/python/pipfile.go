package python

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// Pipfile parses Pipfile (pipenv).
type Pipfile struct{}

func (p *Pipfile) Type() string              { return "Pipfile" }
func (p *Pipfile) IncludesTransitive() bool  { return false }
func (p *Pipfile) Supports(name string) bool { return name == "Pipfile" }

func (p *Pipfile) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Packages    map[string]any    `toml:"packages"`
		DevPackages map[string]any    `toml:"dev-packages"`
		Scripts     map[string]string `toml:"scripts"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	res := &deps.ManifestResult{Type: p.Type(), Scripts: file.Scripts}
	res.Dependencies = append(res.Dependencies, tableDeps(file.Packages, deps.TypeRuntime)...)
	res.Dependencies = append(res.Dependencies, tableDeps(file.DevPackages, deps.TypeDev)...)
	return res, nil
}

// PipfileLock parses Pipfile.lock.
type PipfileLock struct{}

func (p *PipfileLock) Type() string              { return "Pipfile.lock" }
func (p *PipfileLock) IncludesTransitive() bool  { return true }
func (p *PipfileLock) Supports(name string) bool { return name == "Pipfile.lock" }

func (p *PipfileLock) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	type entry struct {
		Version string `json:"version"`
	}
	var lock struct {
		Meta struct {
			Spec int `json:"pipfile-spec"`
		} `json:"_meta"`
		Default map[string]entry `json:"default"`
		Develop map[string]entry `json:"develop"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(lock.Default)+len(lock.Develop))
	for _, section := range []map[string]entry{lock.Develop, lock.Default} {
		for name, e := range section {
			if e.Version != "" {
				resolved[normalize(name)] = strings.TrimPrefix(e.Version, "==")
			}
		}
	}

	res := &deps.ManifestResult{
		Type:               p.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
	}
	if lock.Meta.Spec > 0 {
		res.LockfileVersion = strconv.Itoa(lock.Meta.Spec)
	}
	return res, nil
}
