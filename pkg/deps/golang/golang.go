// Package golang reads Go module files: go.mod and go.sum.
package golang

import "github.com/matzehuels/evidencepack/pkg/deps"

// Language describes the Go dependency files.
var Language = &deps.Language{
	Name:            "go",
	Runtime:         "Go",
	ManifestParsers: manifestParsers,
}

func manifestParsers() []deps.ManifestParser {
	return []deps.ManifestParser{
		&GoModParser{},
		&GoSumParser{},
	}
}
