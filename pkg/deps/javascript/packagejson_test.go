package javascript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPackageJSON_Supports(t *testing.T) {
	parser := &PackageJSON{}

	tests := []struct {
		filename string
		want     bool
	}{
		{"package.json", true},
		{"Package.json", true},
		{"package-lock.json", false},
		{"Cargo.toml", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := parser.Supports(tt.filename); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestPackageJSON_Parse(t *testing.T) {
	path := writeFile(t, "package.json", `{
  "name": "my-package",
  "version": "1.0.0",
  "scripts": {"test": "jest"},
  "engines": {"node": ">=20"},
  "dependencies": {
    "express": "^4.18.0",
    "lodash": "^4.17.21"
  },
  "devDependencies": {
    "jest": "^29.0.0"
  },
  "peerDependencies": {
    "react": ">=18"
  },
  "optionalDependencies": {
    "fsevents": "^2.3.0"
  }
}`)

	result, err := (&PackageJSON{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.RootPackage != "my-package" || result.Version != "1.0.0" {
		t.Errorf("root = %q@%q, want my-package@1.0.0", result.RootPackage, result.Version)
	}
	if result.IncludesTransitive {
		t.Error("package.json should not include transitive dependencies")
	}
	if result.Scripts["test"] != "jest" || result.Engines["node"] != ">=20" {
		t.Errorf("Scripts = %v Engines = %v", result.Scripts, result.Engines)
	}

	byName := map[string]deps.Dependency{}
	for _, d := range result.Dependencies {
		byName[d.Name] = d
	}
	want := map[string]string{
		"express":  deps.TypeRuntime,
		"lodash":   deps.TypeRuntime,
		"jest":     deps.TypeDev,
		"react":    deps.TypePeer,
		"fsevents": deps.TypeOptional,
	}
	if len(byName) != len(want) {
		t.Fatalf("got %d dependencies, want %d", len(byName), len(want))
	}
	for name, typ := range want {
		if byName[name].Type != typ {
			t.Errorf("%s type = %q, want %q", name, byName[name].Type, typ)
		}
	}
	if byName["express"].Version != "^4.18.0" {
		t.Errorf("express version = %q, want %q", byName["express"].Version, "^4.18.0")
	}
}

func TestPackageJSON_ParseInvalid(t *testing.T) {
	path := writeFile(t, "package.json", `{not json`)
	if _, err := (&PackageJSON{}).Parse(path); err == nil {
		t.Error("Parse of invalid JSON should fail")
	}
}

func TestPackageLock_Parse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		version string
	}{
		{
			name: "v3 packages",
			content: `{
  "name": "app", "lockfileVersion": 3,
  "packages": {
    "": {"name": "app"},
    "node_modules/express": {"version": "4.19.2"},
    "node_modules/@types/node": {"version": "20.11.0"},
    "node_modules/express/node_modules/debug": {"version": "2.6.9"},
    "node_modules/debug": {"version": "4.3.4"}
  }
}`,
			want:    map[string]string{"express": "4.19.2", "@types/node": "20.11.0", "debug": "4.3.4"},
			version: "3",
		},
		{
			name:    "v1 dependencies",
			content: `{"lockfileVersion": 1, "dependencies": {"lodash": {"version": "4.17.21"}}}`,
			want:    map[string]string{"lodash": "4.17.21"},
			version: "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&PackageLock{}).Parse(writeFile(t, "package-lock.json", tt.content))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.LockfileVersion != tt.version {
				t.Errorf("LockfileVersion = %q, want %q", res.LockfileVersion, tt.version)
			}
			if len(res.Resolved) != len(tt.want) {
				t.Errorf("Resolved = %v, want %v", res.Resolved, tt.want)
			}
			for name, v := range tt.want {
				if res.Resolved[name] != v {
					t.Errorf("Resolved[%s] = %q, want %q", name, res.Resolved[name], v)
				}
			}
		})
	}
}

func TestPnpmLock_Parse(t *testing.T) {
	content := `lockfileVersion: '9.0'

importers:
  .:
    dependencies:
      react:
        specifier: ^18.2.0
        version: 18.2.0

packages:
  react@18.2.0:
    resolution: {integrity: sha512-abc}
  '@babel/core@7.24.0':
    resolution: {integrity: sha512-def}
  react-dom@18.2.0(react@18.2.0):
    resolution: {integrity: sha512-ghi}
`
	res, err := (&PnpmLock{}).Parse(writeFile(t, "pnpm-lock.yaml", content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.LockfileVersion != "9.0" {
		t.Errorf("LockfileVersion = %q, want %q", res.LockfileVersion, "9.0")
	}
	want := map[string]string{"react": "18.2.0", "@babel/core": "7.24.0", "react-dom": "18.2.0"}
	for name, v := range want {
		if res.Resolved[name] != v {
			t.Errorf("Resolved[%s] = %q, want %q", name, res.Resolved[name], v)
		}
	}
}

func TestParsePnpmKey(t *testing.T) {
	tests := []struct {
		key, name, version string
	}{
		{"/lodash/4.17.21", "lodash", "4.17.21"},
		{"/@babel/core/7.0.0", "@babel/core", "7.0.0"},
		{"/lodash@4.17.21", "lodash", "4.17.21"},
		{"@types/node@20.1.0", "@types/node", "20.1.0"},
		{"react-dom@18.2.0(react@18.2.0)", "react-dom", "18.2.0"},
	}
	for _, tt := range tests {
		name, version := parsePnpmKey(tt.key)
		if name != tt.name || version != tt.version {
			t.Errorf("parsePnpmKey(%q) = %q, %q, want %q, %q", tt.key, name, version, tt.name, tt.version)
		}
	}
}

func TestYarnLock_Parse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  string
	}{
		{
			name: "classic",
			content: `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1


"@babel/core@^7.0.0", "@babel/core@^7.1.0":
  version "7.24.0"
  resolved "https://registry.yarnpkg.com/@babel/core/-/core-7.24.0.tgz"

react@^18.2.0:
  version "18.2.0"
`,
			format: "yarn-v1",
		},
		{
			name: "berry",
			content: `__metadata:
  version: 8
  cacheKey: 10

"@babel/core@npm:^7.0.0":
  version: 7.24.0
  resolution: "@babel/core@npm:7.24.0"

"react@npm:^18.2.0":
  version: 18.2.0
`,
			format: "yarn-berry",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&YarnLock{}).Parse(writeFile(t, "yarn.lock", tt.content))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.LockfileVersion != tt.format {
				t.Errorf("format = %q, want %q", res.LockfileVersion, tt.format)
			}
			if len(res.Resolved) != 2 {
				t.Errorf("Resolved = %v, want 2 entries", res.Resolved)
			}
			if res.Resolved["@babel/core"] != "7.24.0" || res.Resolved["react"] != "18.2.0" {
				t.Errorf("Resolved = %v", res.Resolved)
			}
		})
	}
}

func TestScanNodeRoot(t *testing.T) {
	repo := t.TempDir()
	files := map[string]string{
		"package.json":   `{"name":"web","dependencies":{"react":"^18.2.0"},"devDependencies":{"vitest":"^1.0.0"}}`,
		"pnpm-lock.yaml": "lockfileVersion: '9.0'\npackages:\n  react@18.2.0:\n    resolution: {integrity: x}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(repo, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	eco, errs := deps.Scan(repo, ".", Language, "pnpm")
	if len(errs) != 0 {
		t.Fatalf("Scan errors: %v", errs)
	}
	if eco.Name != "web" || eco.Total != 2 {
		t.Errorf("eco = %s total %d, want web total 2", eco.Name, eco.Total)
	}
	if eco.Lockfile == nil || eco.Lockfile.Type != "pnpm-lock.yaml" {
		t.Fatalf("Lockfile = %+v, want pnpm-lock.yaml", eco.Lockfile)
	}
	if eco.Dependencies[0].Resolved != "18.2.0" {
		t.Errorf("react resolved = %q, want %q", eco.Dependencies[0].Resolved, "18.2.0")
	}
}
