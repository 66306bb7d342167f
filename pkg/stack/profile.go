package stack

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/signal"
)

// Candidate is one detected stack element.
type Candidate struct {
	Name       string          `json:"name"`
	Category   Category        `json:"category"`
	Confidence float64         `json:"confidence"`
	Signals    []signal.Signal `json:"signals"`
}

// HasLockfile reports whether a lockfile supports the candidate.
func (c Candidate) HasLockfile() bool {
	for _, s := range c.Signals {
		if s.Kind == signal.KindLockfile {
			return true
		}
	}
	return false
}

func (c Candidate) clone() Candidate {
	c.Signals = slices.Clone(c.Signals)
	return c
}

// Profile is the resolved stack of a repository. It is immutable: every
// accessor returns a copy.
type Profile struct {
	candidates []Candidate
	roots      map[string][]string
	managers   map[string]string
	atRoot     map[string]map[string]string
}

var categoryOrder = map[Category]int{
	CategoryRuntime:        0,
	CategoryFramework:      1,
	CategoryPackageManager: 2,
}

func newProfile(cands []Candidate, roots map[string][]string, atRoot map[string]map[string]string, rules map[string]Rule) Profile {
	cands = slices.Clone(cands)
	slices.SortFunc(cands, func(a, b Candidate) int {
		if c := cmp.Compare(categoryOrder[a.Category], categoryOrder[b.Category]); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	managers := map[string]string{}
	for _, c := range cands {
		if c.Category == CategoryPackageManager {
			managers[rules[c.Name].Runtime] = c.Name
		}
	}
	return Profile{candidates: cands, roots: roots, managers: managers, atRoot: atRoot}
}

// Empty reports whether nothing was detected.
func (p Profile) Empty() bool { return len(p.candidates) == 0 }

// Candidates returns every candidate ordered by category, then name.
func (p Profile) Candidates() []Candidate {
	out := make([]Candidate, len(p.candidates))
	for i, c := range p.candidates {
		out[i] = c.clone()
	}
	return out
}

func (p Profile) names(cat Category) []string {
	var out []string
	for _, c := range p.candidates {
		if c.Category == cat {
			out = append(out, c.Name)
		}
	}
	return out
}

// Runtimes returns the detected runtime names.
func (p Profile) Runtimes() []string { return p.names(CategoryRuntime) }

// Frameworks returns the detected framework names.
func (p Profile) Frameworks() []string { return p.names(CategoryFramework) }

// PackageManagers returns the selected package manager per runtime.
func (p Profile) PackageManagers() map[string]string {
	out := make(map[string]string, len(p.managers))
	for k, v := range p.managers {
		out[k] = v
	}
	return out
}

// PackageManager returns the package manager selected for runtime.
func (p Profile) PackageManager(runtime string) (string, bool) {
	m, ok := p.managers[runtime]
	return m, ok
}

// PackageManagerAt returns the package manager selected for the runtime
// ecosystem rooted at root. Roots without a local verdict inherit the
// runtime-wide selection.
func (p Profile) PackageManagerAt(runtime, root string) (string, bool) {
	if m, ok := p.atRoot[runtime][root]; ok {
		return m, true
	}
	return p.PackageManager(runtime)
}

// RootPackageManagers returns the package manager of every ecosystem root,
// keyed by runtime and then root.
func (p Profile) RootPackageManagers() map[string]map[string]string {
	out := make(map[string]map[string]string, len(p.roots))
	for runtime, dirs := range p.roots {
		for _, dir := range dirs {
			m, ok := p.PackageManagerAt(runtime, dir)
			if !ok {
				continue
			}
			if out[runtime] == nil {
				out[runtime] = map[string]string{}
			}
			out[runtime][dir] = m
		}
	}
	return out
}

// Has reports whether a candidate with the given name was detected.
func (p Profile) Has(name string) bool {
	_, ok := p.Candidate(name)
	return ok
}

// Candidate returns the named candidate.
func (p Profile) Candidate(name string) (Candidate, bool) {
	for _, c := range p.candidates {
		if c.Name == name {
			return c.clone(), true
		}
	}
	return Candidate{}, false
}

// HasAnyRuntime reports whether at least one of runtimes was detected.
func (p Profile) HasAnyRuntime(runtimes ...string) bool {
	return slices.ContainsFunc(runtimes, p.Has)
}

// PrimaryRuntime returns the runtime with the highest confidence, breaking
// ties by number of supporting signals and then by name. It returns "" for an
// empty profile.
func (p Profile) PrimaryRuntime() string {
	var best *Candidate
	for i := range p.candidates {
		c := &p.candidates[i]
		if c.Category != CategoryRuntime {
			continue
		}
		if best == nil ||
			c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence && len(c.Signals) > len(best.Signals)) {
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}

// PrimaryLanguage maps the primary runtime to a language name.
func (p Profile) PrimaryLanguage() string {
	switch p.PrimaryRuntime() {
	case RuntimeNode:
		if p.HasTypeScript() {
			return "TypeScript"
		}
		return "JavaScript"
	case RuntimePython:
		return "Python"
	case RuntimeGo:
		return "Go"
	case RuntimeRust:
		return "Rust"
	}
	return "Unknown"
}

// HasTypeScript reports whether TypeScript was detected.
func (p Profile) HasTypeScript() bool { return p.Has("TypeScript") }

// IsMobile reports whether a mobile framework was detected.
func (p Profile) IsMobile() bool { return p.Has("React Native") }

// RootsFor returns the directories holding runtime manifests, relative to the
// repository root.
func (p Profile) RootsFor(runtime string) []string {
	return slices.Clone(p.roots[runtime])
}

// Roots returns the ecosystem roots of every runtime.
func (p Profile) Roots() map[string][]string {
	out := make(map[string][]string, len(p.roots))
	for k, v := range p.roots {
		out[k] = slices.Clone(v)
	}
	return out
}

type profileJSON struct {
	PrimaryLanguage string                       `json:"primary_language"`
	Runtime         string                       `json:"runtime,omitempty"`
	Runtimes        []string                     `json:"runtimes"`
	Frameworks      []string                     `json:"frameworks"`
	PackageManagers map[string]string            `json:"package_managers"`
	HasTypeScript   bool                         `json:"has_typescript"`
	IsMobile        bool                         `json:"is_mobile"`
	Roots           map[string][]string          `json:"roots"`
	RootManagers    map[string]map[string]string `json:"root_package_managers"`
	Candidates      []Candidate                  `json:"candidates"`
}

// MarshalJSON implements json.Marshaler.
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(profileJSON{
		PrimaryLanguage: p.PrimaryLanguage(),
		Runtime:         p.PrimaryRuntime(),
		Runtimes:        nonNil(p.Runtimes()),
		Frameworks:      nonNil(p.Frameworks()),
		PackageManagers: p.PackageManagers(),
		HasTypeScript:   p.HasTypeScript(),
		IsMobile:        p.IsMobile(),
		Roots:           p.Roots(),
		RootManagers:    p.RootPackageManagers(),
		Candidates:      nonNil(p.Candidates()),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
