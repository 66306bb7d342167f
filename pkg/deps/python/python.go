// Package python reads Python dependency files: requirements*.txt,
// pyproject.toml (PEP 621 and Poetry), Pipfile, poetry.lock and Pipfile.lock.
package python

import (
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// Language describes the Python dependency files.
var Language = &deps.Language{
	Name:            "python",
	Runtime:         "Python",
	ManifestParsers: manifestParsers,
}

func manifestParsers() []deps.ManifestParser {
	return []deps.ManifestParser{
		&Requirements{},
		&Pyproject{},
		&Pipfile{},
		&PoetryLock{},
		&PipfileLock{},
	}
}

// normalize applies PEP 503 name normalization.
func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "-", ".", "-").Replace(name)
}

// specString renders a Poetry or Pipfile requirement value, which is either
// a version string or a table with a "version" key.
func specString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		if ver, ok := s["version"].(string); ok {
			return ver
		}
		if _, ok := s["git"]; ok {
			return "git"
		}
		if _, ok := s["path"]; ok {
			return "path"
		}
	}
	return ""
}
