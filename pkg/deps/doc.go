// Package deps reads dependency declarations from local manifests and
// lockfiles.
//
// Each ecosystem subpackage ([javascript], [python], [golang], [rust]) exposes
// a [Language] with its [ManifestParser] set. [Scan] applies a language's
// parsers to one ecosystem root and merges the results into an [Ecosystem]
// section of dependencies.json.
//
// Parsing is purely local. No registry is contacted and nothing is resolved
// beyond what the lockfiles already record.
//
// [javascript]: github.com/matzehuels/evidencepack/pkg/deps/javascript
// [python]: github.com/matzehuels/evidencepack/pkg/deps/python
// [golang]: github.com/matzehuels/evidencepack/pkg/deps/golang
// [rust]: github.com/matzehuels/evidencepack/pkg/deps/rust
package deps
