package javascript

import (
	"strings"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

// Language describes the Node.js dependency files.
var Language = &deps.Language{
	Name:            "javascript",
	Runtime:         "Node.js",
	ManifestParsers: manifestParsers,
}

func manifestParsers() []deps.ManifestParser {
	return []deps.ManifestParser{
		&PackageJSON{},
		&PackageLock{},
		&PnpmLock{},
		&YarnLock{},
	}
}

// splitPackageSpec splits "name@version" where name may be scoped
// ("@scope/name@1.0.0").
func splitPackageSpec(spec string) (name, version string) {
	start := 0
	if strings.HasPrefix(spec, "@") {
		start = 1
	}
	i := strings.Index(spec[start:], "@")
	if i < 0 {
		return spec, ""
	}
	return spec[:start+i], spec[start+i+1:]
}
