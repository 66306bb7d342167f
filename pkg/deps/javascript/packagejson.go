package javascript

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// PackageJSON parses package.json files. It extracts dependencies,
// devDependencies, peerDependencies, and optionalDependencies.
type PackageJSON struct{}

func (p *PackageJSON) Type() string              { return "package.json" }
func (p *PackageJSON) IncludesTransitive() bool  { return false }
func (p *PackageJSON) Supports(name string) bool { return strings.EqualFold(name, "package.json") }

func (p *PackageJSON) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}

	return &deps.ManifestResult{
		Type:         p.Type(),
		RootPackage:  pkg.Name,
		Version:      pkg.Version,
		Description:  pkg.Description,
		Dependencies: extractPackageDeps(pkg),
		Scripts:      pkg.Scripts,
		Engines:      pkg.Engines,
	}, nil
}

func extractPackageDeps(pkg packageFile) []deps.Dependency {
	var out []deps.Dependency
	add := func(m map[string]string, typ string) {
		for name, version := range m {
			out = append(out, deps.Dependency{Name: name, Version: version, Type: typ})
		}
	}
	add(pkg.Dependencies, deps.TypeRuntime)
	add(pkg.DevDependencies, deps.TypeDev)
	add(pkg.PeerDependencies, deps.TypePeer)
	add(pkg.OptionalDependencies, deps.TypeOptional)
	return out
}

type packageFile struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Scripts              map[string]string `json:"scripts"`
	Engines              map[string]string `json:"engines"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}
