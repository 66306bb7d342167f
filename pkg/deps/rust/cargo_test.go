package rust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

func TestCargoToml_Parse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")
	content := `[package]
name = "svc"
version = "0.1.0"
edition = "2021"

[dependencies]
axum = "0.7"
serde = { version = "1.0", features = ["derive"] }
shared = { workspace = true }

[dev-dependencies]
tokio-test = "0.4"

[build-dependencies]
cc = "1.0"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := (&CargoToml{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RootPackage != "svc" || res.Version != "0.1.0" {
		t.Errorf("root = %q@%q, want svc@0.1.0", res.RootPackage, res.Version)
	}
	if res.Engines["edition"] != "2021" {
		t.Errorf("Engines = %v, want edition 2021", res.Engines)
	}

	tests := []struct {
		name, version, typ string
	}{
		{"axum", "0.7", deps.TypeRuntime},
		{"serde", "1.0", deps.TypeRuntime},
		{"shared", "workspace", deps.TypeRuntime},
		{"tokio-test", "0.4", deps.TypeDev},
		{"cc", "1.0", deps.TypeBuild},
	}
	got := map[string]deps.Dependency{}
	for _, d := range res.Dependencies {
		got[d.Name] = d
	}
	if len(got) != len(tests) {
		t.Fatalf("Dependencies = %+v", res.Dependencies)
	}
	for _, tt := range tests {
		if d := got[tt.name]; d.Version != tt.version || d.Type != tt.typ {
			t.Errorf("%s = %+v, want version %q type %q", tt.name, d, tt.version, tt.typ)
		}
	}
}

func TestCargoLock_Parse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cargo.lock")
	content := `version = 3

[[package]]
name = "axum"
version = "0.7.4"

[[package]]
name = "serde"
version = "1.0.197"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&CargoLock{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.LockfileVersion != "3" {
		t.Errorf("LockfileVersion = %q, want %q", res.LockfileVersion, "3")
	}
	if res.Resolved["serde"] != "1.0.197" || len(res.Resolved) != 2 {
		t.Errorf("Resolved = %v", res.Resolved)
	}
}

func TestLanguageParsers(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"Cargo.toml", true},
		{"cargo.toml", true},
		{"Cargo.lock", true},
		{"go.mod", false},
	}
	for _, tt := range tests {
		if _, ok := Language.Parser(tt.filename); ok != tt.want {
			t.Errorf("Parser(%q) ok = %v, want %v", tt.filename, ok, tt.want)
		}
	}
}
