package python

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/evidencepack/pkg/deps"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func byName(ds []deps.Dependency) map[string]deps.Dependency {
	out := map[string]deps.Dependency{}
	for _, d := range ds {
		out[d.Name] = d
	}
	return out
}

func TestRequirements_Supports(t *testing.T) {
	parser := &Requirements{}

	tests := []struct {
		filename string
		want     bool
	}{
		{"requirements.txt", true},
		{"requirements-dev.txt", true},
		{"requirements_prod.txt", true},
		{"pyproject.toml", false},
		{"poetry.lock", false},
		{"Pipfile", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := parser.Supports(tt.filename); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestRequirements_Parse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "requirements.txt", `# Test requirements
Django==4.2.7
requests[security]>=2.31  # http
flask
-r other.txt
-e .
git+https://github.com/org/pkg.git
Typing_Extensions ; python_version < "3.11"
`)

	res, err := (&Requirements{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := byName(res.Dependencies)
	tests := []struct {
		name, version, spec string
	}{
		{"django", "4.2.7", "Django==4.2.7"},
		{"requests", ">=2.31", "requests[security]>=2.31"},
		{"flask", "", "flask"},
		{"typing-extensions", "", `Typing_Extensions ; python_version < "3.11"`},
	}
	if len(got) != len(tests) {
		t.Fatalf("got %d dependencies, want %d: %v", len(got), len(tests), res.Dependencies)
	}
	for _, tt := range tests {
		d, ok := got[tt.name]
		if !ok {
			t.Errorf("missing %s", tt.name)
			continue
		}
		if d.Version != tt.version {
			t.Errorf("%s version = %q, want %q", tt.name, d.Version, tt.version)
		}
		if d.Spec != tt.spec {
			t.Errorf("%s spec = %q, want %q", tt.name, d.Spec, tt.spec)
		}
		if d.Type != deps.TypeRuntime {
			t.Errorf("%s type = %q, want %q", tt.name, d.Type, deps.TypeRuntime)
		}
	}
}

func TestRequirements_DevFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "requirements-dev.txt", "pytest==8.0.0\n")
	res, err := (&Requirements{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Dependencies) != 1 || res.Dependencies[0].Type != deps.TypeDev {
		t.Errorf("Dependencies = %+v, want one dev dependency", res.Dependencies)
	}
}

func TestPyproject_PEP621(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pyproject.toml", `
[project]
name = "svc"
version = "0.3.0"
dependencies = ["fastapi>=0.110", "uvicorn[standard]"]

[project.optional-dependencies]
test = ["pytest>=8"]

[dependency-groups]
lint = ["ruff"]
`)
	res, err := (&Pyproject{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RootPackage != "svc" || res.Version != "0.3.0" {
		t.Errorf("root = %q@%q, want svc@0.3.0", res.RootPackage, res.Version)
	}
	got := byName(res.Dependencies)
	want := map[string]string{
		"fastapi": deps.TypeRuntime,
		"uvicorn": deps.TypeRuntime,
		"pytest":  deps.TypeOptional,
		"ruff":    deps.TypeDev,
	}
	if len(got) != len(want) {
		t.Fatalf("Dependencies = %+v", res.Dependencies)
	}
	for name, typ := range want {
		if got[name].Type != typ {
			t.Errorf("%s type = %q, want %q", name, got[name].Type, typ)
		}
	}
	if got["fastapi"].Version != ">=0.110" {
		t.Errorf("fastapi version = %q, want %q", got["fastapi"].Version, ">=0.110")
	}
}

func TestPyproject_Poetry(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pyproject.toml", `
[tool.poetry]
name = "legacy"
version = "1.0.0"

[tool.poetry.dependencies]
python = "^3.11"
django = "^4.2"
celery = { version = "^5.3", extras = ["redis"] }

[tool.poetry.group.dev.dependencies]
black = "^24.1"
`)
	res, err := (&Pyproject{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RootPackage != "legacy" {
		t.Errorf("RootPackage = %q, want %q", res.RootPackage, "legacy")
	}
	got := byName(res.Dependencies)
	if _, ok := got["python"]; ok {
		t.Error("python interpreter constraint should not be a dependency")
	}
	if got["celery"].Version != "^5.3" {
		t.Errorf("celery version = %q, want %q", got["celery"].Version, "^5.3")
	}
	if got["black"].Type != deps.TypeDev {
		t.Errorf("black type = %q, want %q", got["black"].Type, deps.TypeDev)
	}
}

func TestPipfile_Parse(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Pipfile", `
[packages]
flask = "*"
requests = {version = ">=2.0"}

[dev-packages]
pytest = "*"
`)
	res, err := (&Pipfile{}).Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := byName(res.Dependencies)
	if got["requests"].Version != ">=2.0" {
		t.Errorf("requests version = %q, want %q", got["requests"].Version, ">=2.0")
	}
	if got["pytest"].Type != deps.TypeDev {
		t.Errorf("pytest type = %q, want %q", got["pytest"].Type, deps.TypeDev)
	}
}

func TestLockfiles(t *testing.T) {
	dir := t.TempDir()
	poetry := writeFile(t, dir, "poetry.lock", `
[[package]]
name = "Django"
version = "4.2.7"

[[package]]
name = "asgiref"
version = "3.7.2"

[metadata]
lock-version = "2.0"
`)
	pipenv := writeFile(t, dir, "Pipfile.lock", `{
  "_meta": {"pipfile-spec": 6},
  "default": {"flask": {"version": "==3.0.0"}},
  "develop": {"pytest": {"version": "==8.0.0"}}
}`)

	tests := []struct {
		name    string
		parser  deps.ManifestParser
		path    string
		version string
		want    map[string]string
	}{
		{"poetry", &PoetryLock{}, poetry, "2.0", map[string]string{"django": "4.2.7", "asgiref": "3.7.2"}},
		{"pipenv", &PipfileLock{}, pipenv, "6", map[string]string{"flask": "3.0.0", "pytest": "8.0.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.parser.Parse(tt.path)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !res.IncludesTransitive {
				t.Error("lockfile should include transitive dependencies")
			}
			if res.LockfileVersion != tt.version {
				t.Errorf("LockfileVersion = %q, want %q", res.LockfileVersion, tt.version)
			}
			for name, v := range tt.want {
				if res.Resolved[name] != v {
					t.Errorf("Resolved[%s] = %q, want %q", name, res.Resolved[name], v)
				}
			}
		})
	}
}

func TestScanPoetryProject(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "pyproject.toml", "[tool.poetry]\nname = \"app\"\n[tool.poetry.dependencies]\npython = \"^3.11\"\nDjango = \"^4.2\"\n")
	writeFile(t, repo, "poetry.lock", "[[package]]\nname = \"django\"\nversion = \"4.2.7\"\n")

	eco, errs := deps.Scan(repo, ".", Language, "poetry")
	if len(errs) != 0 {
		t.Fatalf("Scan errors: %v", errs)
	}
	if eco.Name != "app" || eco.Total != 1 {
		t.Fatalf("eco = %s total %d, want app total 1", eco.Name, eco.Total)
	}
	if !eco.LockfilePresent || eco.Dependencies[0].Resolved != "4.2.7" {
		t.Errorf("django resolved = %q, lockfile = %v", eco.Dependencies[0].Resolved, eco.LockfilePresent)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Django", "django"},
		{"typing_extensions", "typing-extensions"},
		{"zope.interface", "zope-interface"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
