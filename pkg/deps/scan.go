package deps

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Ecosystem is the dependencies.json section for one runtime root.
type Ecosystem struct {
	Runtime         string            `json:"runtime"`
	Root            string            `json:"root"`
	PackageManager  string            `json:"package_manager,omitempty"`
	Name            string            `json:"name,omitempty"`
	Version         string            `json:"version,omitempty"`
	Manifests       []string          `json:"manifests"`
	LockfilePresent bool              `json:"lockfile_present"`
	Lockfile        *LockfileInfo     `json:"lockfile_info,omitempty"`
	Dependencies    []Dependency      `json:"dependencies"`
	DevDependencies []Dependency      `json:"dev_dependencies"`
	ByType          map[string]int    `json:"by_type"`
	Total           int               `json:"total_dependencies"`
	Scripts         map[string]string `json:"scripts,omitempty"`
	Engines         map[string]string `json:"engines,omitempty"`
}

// LockfileInfo summarizes a lockfile.
type LockfileInfo struct {
	Type            string            `json:"type"`
	Path            string            `json:"path"`
	LockfileVersion string            `json:"lockfile_version,omitempty"`
	Packages        int               `json:"packages"`
	Resolved        map[string]string `json:"resolved_versions"`
}

// Report is the content of dependencies.json.
type Report struct {
	Ecosystems        []Ecosystem `json:"ecosystems"`
	TotalDependencies int         `json:"total_dependencies"`
}

// Totals returns dependency counts by runtime.
func (r Report) Totals() map[string]int {
	out := map[string]int{}
	for _, e := range r.Ecosystems {
		out[e.Runtime] += e.Total
	}
	return out
}

// NewReport sorts ecosystems by runtime and root and computes the total.
func NewReport(ecosystems []Ecosystem) Report {
	ecosystems = slices.Clone(ecosystems)
	slices.SortFunc(ecosystems, func(a, b Ecosystem) int {
		if c := cmp.Compare(a.Runtime, b.Runtime); c != 0 {
			return c
		}
		return cmp.Compare(a.Root, b.Root)
	})
	total := 0
	for _, e := range ecosystems {
		total += e.Total
	}
	return Report{Ecosystems: ecosystems, TotalDependencies: total}
}

// Scan parses every supported file in repo/root and merges them. Files that
// fail to parse are reported in the returned error slice and otherwise
// ignored. packageManager selects which lockfile is authoritative when
// several are present; an empty value accepts the first found.
func Scan(repo, root string, lang *Language, packageManager string) (Ecosystem, []error) {
	eco := Ecosystem{
		Runtime:        lang.Runtime,
		Root:           root,
		PackageManager: packageManager,
		ByType:         map[string]int{},
	}

	dir := filepath.Join(repo, filepath.FromSlash(root))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eco, []error{err}
	}

	var errs []error
	var lockfiles []lockCandidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p, ok := lang.Parser(e.Name())
		if !ok {
			continue
		}
		rel := joinRel(root, e.Name())
		res, err := p.Parse(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			continue
		}
		eco.Manifests = append(eco.Manifests, rel)
		if res.IncludesTransitive {
			lockfiles = append(lockfiles, lockCandidate{rel: rel, res: res})
			continue
		}
		eco.merge(rel, res)
	}

	if lf, ok := pickLockfile(lockfiles, packageManager); ok {
		eco.LockfilePresent = true
		eco.Lockfile = &LockfileInfo{
			Type:            lf.res.Type,
			Path:            lf.rel,
			LockfileVersion: lf.res.LockfileVersion,
			Packages:        len(lf.res.Resolved),
			Resolved:        lf.res.Resolved,
		}
		if eco.Name == "" {
			eco.Name = lf.res.RootPackage
		}
		for i, d := range eco.Dependencies {
			eco.Dependencies[i].Resolved = lf.res.Resolved[d.Name]
		}
		for i, d := range eco.DevDependencies {
			eco.DevDependencies[i].Resolved = lf.res.Resolved[d.Name]
		}
	}

	sortDeps(eco.Dependencies)
	sortDeps(eco.DevDependencies)
	if eco.Dependencies == nil {
		eco.Dependencies = []Dependency{}
	}
	if eco.DevDependencies == nil {
		eco.DevDependencies = []Dependency{}
	}
	if eco.Manifests == nil {
		eco.Manifests = []string{}
	}
	eco.Total = len(eco.Dependencies) + len(eco.DevDependencies)
	return eco, errs
}

func (e *Ecosystem) merge(rel string, res *ManifestResult) {
	if e.Name == "" {
		e.Name = res.RootPackage
		e.Version = res.Version
	}
	if len(res.Scripts) > 0 && e.Scripts == nil {
		e.Scripts = maps.Clone(res.Scripts)
	}
	if len(res.Engines) > 0 && e.Engines == nil {
		e.Engines = maps.Clone(res.Engines)
	}
	seen := map[string]bool{}
	for _, d := range append(slices.Clone(e.Dependencies), e.DevDependencies...) {
		seen[d.Type+"\x00"+d.Name] = true
	}
	for _, d := range res.Dependencies {
		key := d.Type + "\x00" + d.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		d.Source = rel
		e.ByType[d.Type]++
		if d.Type == TypeDev {
			e.DevDependencies = append(e.DevDependencies, d)
		} else {
			e.Dependencies = append(e.Dependencies, d)
		}
	}
}

type lockCandidate struct {
	rel string
	res *ManifestResult
}

// lockfileManagers maps lockfile types to the package manager that writes them.
var lockfileManagers = map[string]string{
	"package-lock.json":   "npm",
	"npm-shrinkwrap.json": "npm",
	"yarn.lock":           "yarn",
	"pnpm-lock.yaml":      "pnpm",
	"poetry.lock":         "poetry",
	"Pipfile.lock":        "pipenv",
	"go.sum":              "go modules",
	"Cargo.lock":          "cargo",
}

func pickLockfile(cands []lockCandidate, packageManager string) (lockCandidate, bool) {
	if len(cands) == 0 {
		return lockCandidate{}, false
	}
	if packageManager == "" {
		return cands[0], true
	}
	for _, c := range cands {
		if lockfileManagers[c.res.Type] == packageManager {
			return c, true
		}
	}
	return cands[0], true
}

func sortDeps(ds []Dependency) {
	slices.SortFunc(ds, func(a, b Dependency) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
}

func joinRel(root, name string) string {
	if root == "" || root == "." {
		return name
	}
	return path.Join(root, name)
}

// SplitSpec splits a requirement like "requests>=2.0" into name and version
// constraint.
func SplitSpec(spec string) (name, version string) {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, ";"); i >= 0 {
		spec = strings.TrimSpace(spec[:i])
	}
	for i, r := range spec {
		if strings.ContainsRune("=<>!~ [(", r) {
			name = strings.TrimSpace(spec[:i])
			version = strings.TrimSpace(spec[i:])
			if strings.HasPrefix(version, "[") {
				if j := strings.Index(version, "]"); j >= 0 {
					version = strings.TrimSpace(version[j+1:])
				}
			}
			version = strings.Trim(version, "()")
			version = strings.TrimPrefix(version, "==")
			return name, strings.TrimSpace(version)
		}
	}
	return spec, ""
}
