package python

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// PoetryLock parses poetry.lock files, which pin the full transitive
// closure.
type PoetryLock struct{}

func (p *PoetryLock) Type() string              { return "poetry.lock" }
func (p *PoetryLock) IncludesTransitive() bool  { return true }
func (p *PoetryLock) Supports(name string) bool { return name == "poetry.lock" }

func (p *PoetryLock) Parse(path string) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock lockFile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(lock.Packages))
	for _, pkg := range lock.Packages {
		resolved[normalize(pkg.Name)] = pkg.Version
	}

	return &deps.ManifestResult{
		Type:               p.Type(),
		IncludesTransitive: true,
		Resolved:           resolved,
		LockfileVersion:    lock.Metadata.LockVersion,
	}, nil
}

type lockFile struct {
	Packages []lockPackage `toml:"package"`
	Metadata struct {
		LockVersion string `toml:"lock-version"`
	} `toml:"metadata"`
}

type lockPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}
