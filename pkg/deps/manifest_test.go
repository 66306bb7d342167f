package deps

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// lineParser treats each "name version" line as a dependency. Files ending in
// ".lock" are read as lockfiles.
type lineParser struct {
	typeName string
	lock     bool
}

func (p *lineParser) Type() string                  { return p.typeName }
func (p *lineParser) Supports(filename string) bool { return filename == p.typeName }
func (p *lineParser) IncludesTransitive() bool      { return p.lock }

func (p *lineParser) Parse(path string) (*ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &ManifestResult{Type: p.typeName, IncludesTransitive: p.lock, Resolved: map[string]string{}}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) == 0:
		case fields[0] == "!":
			return nil, os.ErrInvalid
		case p.lock && len(fields) == 2:
			res.Resolved[fields[0]] = fields[1]
		case len(fields) == 3:
			res.Dependencies = append(res.Dependencies, Dependency{Name: fields[0], Version: fields[1], Type: fields[2]})
		}
	}
	return res, sc.Err()
}

var testLanguage = &Language{
	Name:    "test",
	Runtime: "TestRuntime",
	ManifestParsers: func() []ManifestParser {
		return []ManifestParser{
			&lineParser{typeName: "deps.txt"},
			&lineParser{typeName: "a.lock", lock: true},
			&lineParser{typeName: "b.lock", lock: true},
		}
	},
}

func TestDetectManifest(t *testing.T) {
	parsers := testLanguage.ManifestParsers()
	tests := []struct {
		name     string
		path     string
		wantType string
		wantErr  bool
	}{
		{"manifest", "/some/path/deps.txt", "deps.txt", false},
		{"lockfile", "/project/a.lock", "a.lock", false},
		{"no match", "/project/unknown.yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := DetectManifest(tt.path, parsers...)
			if tt.wantErr {
				if err == nil {
					t.Error("DetectManifest() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectManifest() unexpected error: %v", err)
			}
			if parser.Type() != tt.wantType {
				t.Errorf("DetectManifest().Type() = %q, want %q", parser.Type(), tt.wantType)
			}
		})
	}

	if _, err := DetectManifest("x"); err == nil {
		t.Error("DetectManifest() with no parsers expected error")
	}
}

func TestLanguageParser(t *testing.T) {
	if _, ok := testLanguage.Parser("deps.txt"); !ok {
		t.Error("Parser(deps.txt) not found")
	}
	if _, ok := testLanguage.Parser("other.txt"); ok {
		t.Error("Parser(other.txt) should not be found")
	}
	if !testLanguage.HasManifests() {
		t.Error("HasManifests() = false, want true")
	}
	empty := &Language{Name: "none"}
	if empty.HasManifests() {
		t.Error("HasManifests() on empty language = true, want false")
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScan(t *testing.T) {
	repo := t.TempDir()
	writeFiles(t, repo, map[string]string{
		"svc/deps.txt": "zlib ^1 runtime\nalpha ~2 runtime\ntester 3 dev\nalpha ~2 runtime\n",
		"svc/a.lock":   "alpha 2.1.0\nzlib 1.3.0\n",
		"svc/b.lock":   "alpha 9.9.9\n",
		"svc/README":   "ignored",
	})

	eco, errs := Scan(repo, "svc", testLanguage, "")
	if len(errs) != 0 {
		t.Fatalf("Scan errors: %v", errs)
	}
	if eco.Total != 3 {
		t.Errorf("Total = %d, want 3", eco.Total)
	}
	if len(eco.Dependencies) != 2 || eco.Dependencies[0].Name != "alpha" {
		t.Fatalf("Dependencies = %+v, want alpha and zlib sorted", eco.Dependencies)
	}
	if eco.Dependencies[0].Source != "svc/deps.txt" {
		t.Errorf("Source = %q, want %q", eco.Dependencies[0].Source, "svc/deps.txt")
	}
	if eco.Dependencies[0].Version != "~2" || eco.Dependencies[0].Resolved != "2.1.0" {
		t.Errorf("alpha = %+v, want declared ~2 resolved 2.1.0", eco.Dependencies[0])
	}
	if len(eco.DevDependencies) != 1 || eco.DevDependencies[0].Name != "tester" {
		t.Errorf("DevDependencies = %+v, want [tester]", eco.DevDependencies)
	}
	if !eco.LockfilePresent || eco.Lockfile.Path != "svc/a.lock" {
		t.Errorf("Lockfile = %+v, want svc/a.lock", eco.Lockfile)
	}
	if eco.ByType[TypeRuntime] != 2 || eco.ByType[TypeDev] != 1 {
		t.Errorf("ByType = %v, want runtime 2 dev 1", eco.ByType)
	}
}

func TestScanParseErrorsAreCollected(t *testing.T) {
	repo := t.TempDir()
	writeFiles(t, repo, map[string]string{
		"deps.txt": "!\n",
		"a.lock":   "x 1\n",
	})
	eco, errs := Scan(repo, ".", testLanguage, "")
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "deps.txt") {
		t.Errorf("errs = %v, want one error naming deps.txt", errs)
	}
	if !eco.LockfilePresent {
		t.Error("the lockfile should still be read")
	}
	if eco.Dependencies == nil || eco.DevDependencies == nil {
		t.Error("dependency lists should be empty, not nil")
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, errs := Scan(t.TempDir(), "missing", testLanguage, "")
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one", errs)
	}
}

func TestPickLockfilePrefersPackageManager(t *testing.T) {
	cands := []lockCandidate{
		{rel: "package-lock.json", res: &ManifestResult{Type: "package-lock.json"}},
		{rel: "pnpm-lock.yaml", res: &ManifestResult{Type: "pnpm-lock.yaml"}},
	}
	got, ok := pickLockfile(cands, "pnpm")
	if !ok || got.rel != "pnpm-lock.yaml" {
		t.Errorf("pickLockfile = %v, want pnpm-lock.yaml", got.rel)
	}
	got, _ = pickLockfile(cands, "")
	if got.rel != "package-lock.json" {
		t.Errorf("pickLockfile without manager = %v, want first", got.rel)
	}
}

func TestNewReport(t *testing.T) {
	r := NewReport([]Ecosystem{
		{Runtime: "Python", Root: "api", Total: 3},
		{Runtime: "Node.js", Root: "web", Total: 5},
		{Runtime: "Node.js", Root: "admin", Total: 1},
	})
	if r.TotalDependencies != 9 {
		t.Errorf("TotalDependencies = %d, want 9", r.TotalDependencies)
	}
	if r.Ecosystems[0].Root != "admin" || r.Ecosystems[2].Runtime != "Python" {
		t.Errorf("order = %+v, want sorted by runtime then root", r.Ecosystems)
	}
	if got := r.Totals()["Node.js"]; got != 6 {
		t.Errorf("Totals()[Node.js] = %d, want 6", got)
	}
}

func TestSplitSpec(t *testing.T) {
	tests := []struct {
		spec, name, version string
	}{
		{"requests", "requests", ""},
		{"requests==2.31.0", "requests", "2.31.0"},
		{"django>=4.2,<5", "django", ">=4.2,<5"},
		{"uvicorn[standard]>=0.29", "uvicorn", ">=0.29"},
		{"pywin32>=306; sys_platform == 'win32'", "pywin32", ">=306"},
		{"numpy (>=1.26)", "numpy", ">=1.26"},
	}
	for _, tt := range tests {
		name, version := SplitSpec(tt.spec)
		if name != tt.name || version != tt.version {
			t.Errorf("SplitSpec(%q) = %q, %q, want %q, %q", tt.spec, name, version, tt.name, tt.version)
		}
	}
}
