package deps

import (
	"fmt"
	"path/filepath"
)

// Dependency types.
const (
	TypeRuntime  = "runtime"
	TypeDev      = "dev"
	TypePeer     = "peer"
	TypeOptional = "optional"
	TypeBuild    = "build"
	TypeIndirect = "indirect"
)

// Dependency is one declared dependency.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Type    string `json:"type"`
	Spec    string `json:"spec,omitempty"`
	// Resolved is the version pinned by the lockfile, when one exists.
	Resolved string `json:"resolved,omitempty"`
	// Source is the manifest path relative to the repository root.
	Source string `json:"source"`
}

// ManifestParser reads dependency information from one kind of manifest or
// lockfile.
type ManifestParser interface {
	// Parse reads the file at path.
	Parse(path string) (*ManifestResult, error)
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Type returns the manifest type identifier (e.g., "package.json", "poetry.lock").
	Type() string
	// IncludesTransitive reports whether the file pins the full transitive
	// closure (lockfiles) or only declares direct dependencies.
	IncludesTransitive() bool
}

// ManifestResult holds the parsed data of one file.
type ManifestResult struct {
	Type               string
	IncludesTransitive bool
	RootPackage        string
	Version            string
	Description        string

	// Dependencies holds direct declarations (manifests only).
	Dependencies []Dependency
	// Resolved maps package name to pinned version (lockfiles only).
	Resolved        map[string]string
	LockfileVersion string

	Scripts map[string]string
	Engines map[string]string
}

// DetectManifest finds a parser that supports the given file path.
// Returns an error if no parser matches.
func DetectManifest(path string, parsers ...ManifestParser) (ManifestParser, error) {
	name := filepath.Base(path)
	for _, p := range parsers {
		if p.Supports(name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}
