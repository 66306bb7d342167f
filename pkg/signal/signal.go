// Package signal walks a repository and reports the files and directories
// that hint at a technology stack.
//
// A [Signal] is a raw observation: a manifest, a lockfile, a config marker,
// or a conventional directory. Interpretation is left to package stack.
package signal

import (
	"path"
	"strings"
)

// Kind classifies a signal.
type Kind string

// Signal kinds.
const (
	KindManifest  Kind = "manifest_file"
	KindLockfile  Kind = "lockfile"
	KindConfig    Kind = "config_marker"
	KindDirectory Kind = "directory_pattern"
)

// Signal is one observation from the repository tree.
type Signal struct {
	Kind Kind `json:"kind"`
	// Path is slash-separated and relative to the repository root.
	Path string `json:"path"`
	// Dir is the directory holding the file ("." for the root).
	Dir string `json:"dir"`
	// Name is the file or directory base name.
	Name string `json:"name"`
	// Excerpt holds the leading bytes of the file for kinds that are
	// classified by content. It is empty otherwise.
	Excerpt string `json:"-"`
}

// Marker maps a file name glob to a signal kind.
type Marker struct {
	Glob    string
	Kind    Kind
	Excerpt bool
}

// Markers is the table of files of interest. Globs match the base name with
// path.Match semantics.
var Markers = []Marker{
	// Manifests
	{"package.json", KindManifest, true},
	{"requirements*.txt", KindManifest, true},
	{"setup.py", KindManifest, true},
	{"setup.cfg", KindManifest, true},
	{"pyproject.toml", KindManifest, true},
	{"Pipfile", KindManifest, true},
	{"go.mod", KindManifest, true},
	{"Cargo.toml", KindManifest, true},

	// Lockfiles
	{"package-lock.json", KindLockfile, false},
	{"npm-shrinkwrap.json", KindLockfile, false},
	{"yarn.lock", KindLockfile, false},
	{"pnpm-lock.yaml", KindLockfile, false},
	{"poetry.lock", KindLockfile, false},
	{"Pipfile.lock", KindLockfile, false},
	{"go.sum", KindLockfile, false},
	{"Cargo.lock", KindLockfile, false},

	// Config markers
	{"pnpm-workspace.yaml", KindConfig, false},
	{".yarnrc.yml", KindConfig, false},
	{".npmrc", KindConfig, false},
	{"tsconfig.json", KindConfig, false},
	{"jsconfig.json", KindConfig, false},
	{"nest-cli.json", KindConfig, false},
	{"angular.json", KindConfig, false},
	{"next.config.*", KindConfig, false},
	{"nuxt.config.*", KindConfig, false},
	{"vite.config.*", KindConfig, false},
	{"vue.config.js", KindConfig, false},
	{"webpack.config.*", KindConfig, false},
	{"craco.config.js", KindConfig, false},
	{"metro.config.js", KindConfig, false},
	{"react-native.config.js", KindConfig, false},
	{"app.json", KindConfig, true},
	{"jest.config.*", KindConfig, false},
	{"vitest.config.*", KindConfig, false},
	{".mocharc*", KindConfig, false},
	{"manage.py", KindConfig, false},
	{"pytest.ini", KindConfig, false},
	{"tox.ini", KindConfig, false},
	{"main.py", KindConfig, true},
	{"app.py", KindConfig, true},
	{"main.go", KindConfig, false},
}

// DirMarkers lists directory conventions. An entry matches when the
// directory's relative path ends with it.
var DirMarkers = []string{
	"android",
	"ios",
	".github/workflows",
	".circleci",
}

// matchMarker returns the marker for a file base name.
func matchMarker(name string) (Marker, bool) {
	for _, m := range Markers {
		if ok, _ := path.Match(m.Glob, name); ok {
			return m, true
		}
	}
	return Marker{}, false
}

// matchDir returns the directory marker matching rel.
func matchDir(rel string) (string, bool) {
	for _, d := range DirMarkers {
		if rel == d || strings.HasSuffix(rel, "/"+d) {
			return d, true
		}
	}
	return "", false
}
