package deps

// Language describes one ecosystem's dependency files.
type Language struct {
	// Name is the display name (e.g., "javascript").
	Name string
	// Runtime is the stack runtime this language serves (e.g., "Node.js").
	Runtime string
	// ManifestParsers returns the parsers in priority order. Manifests come
	// before lockfiles.
	ManifestParsers func() []ManifestParser
}

// Parser returns the parser supporting filename, if any.
func (l *Language) Parser(filename string) (ManifestParser, bool) {
	if l.ManifestParsers == nil {
		return nil, false
	}
	p, err := DetectManifest(filename, l.ManifestParsers()...)
	return p, err == nil
}

// HasManifests reports whether the language has any parsers.
func (l *Language) HasManifests() bool {
	return l.ManifestParsers != nil && len(l.ManifestParsers()) > 0
}
