package rust

import "github.com/matzehuels/evidencepack/pkg/deps"

// Language describes the Rust dependency files.
var Language = &deps.Language{
	Name:            "rust",
	Runtime:         "Rust",
	ManifestParsers: manifestParsers,
}

func manifestParsers() []deps.ManifestParser {
	return []deps.ManifestParser{&CargoToml{}, &CargoLock{}}
}
