// Package stack classifies the technology stack of a repository from the
// signals produced by package signal.
//
// Classification is driven by a declarative rule table ([DefaultRules]).
// Each rule scores the signals, candidates below the rule's minimum score are
// discarded, and a precedence policy resolves what remains into a [Profile]:
// runtimes gate their frameworks and package managers, frameworks coexist,
// and each ecosystem root keeps exactly one package manager.
package stack

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/signal"
)

// scoreEpsilon absorbs floating point error when summing weights.
const scoreEpsilon = 1e-9

// Classifier applies a rule table.
type Classifier struct {
	Rules []Rule
}

// Classify classifies signals with DefaultRules.
func Classify(signals []signal.Signal) Profile {
	return Classifier{Rules: DefaultRules}.Classify(signals)
}

// Classify scores every rule against signals and resolves the survivors into
// a Profile. No matching signals yields an empty profile.
func (c Classifier) Classify(signals []signal.Signal) Profile {
	scored := make([]Candidate, 0, len(c.Rules))
	rules := make(map[string]Rule, len(c.Rules))
	for _, r := range c.Rules {
		cand, ok := score(r, signals)
		if !ok {
			continue
		}
		if _, dup := rules[r.Name]; dup {
			continue
		}
		rules[r.Name] = r
		scored = append(scored, cand)
	}

	runtimes := map[string]bool{}
	for _, cand := range scored {
		if cand.Category == CategoryRuntime {
			runtimes[cand.Name] = true
		}
	}

	var kept []Candidate
	managers := map[string][]Candidate{}
	for _, cand := range scored {
		r := rules[cand.Name]
		switch cand.Category {
		case CategoryRuntime:
			kept = append(kept, cand)
		case CategoryFramework:
			if r.Runtime == "" || runtimes[r.Runtime] {
				kept = append(kept, cand)
			}
		case CategoryPackageManager:
			if runtimes[r.Runtime] {
				managers[r.Runtime] = append(managers[r.Runtime], cand)
			}
		}
	}

	for _, ms := range managers {
		slices.SortFunc(ms, func(a, b Candidate) int {
			return comparePackageManagers(a, b, rules)
		})
		kept = append(kept, ms[0])
	}

	roots := map[string][]string{}
	for _, cand := range kept {
		if cand.Category != CategoryRuntime {
			continue
		}
		var dirs []string
		for _, s := range cand.Signals {
			if s.Kind == signal.KindManifest && !slices.Contains(dirs, s.Dir) {
				dirs = append(dirs, s.Dir)
			}
		}
		slices.Sort(dirs)
		roots[cand.Name] = dirs
	}

	return newProfile(kept, roots, c.rootManagers(roots, signals, rules), rules)
}

// rootManagers rescores the package manager rules of each runtime against
// the signals of every root directory alone, so that a monorepo mixing
// lockfiles resolves each root independently. Roots where no rule clears
// its minimum score are left out and fall back to the repository-wide pick.
func (c Classifier) rootManagers(roots map[string][]string, signals []signal.Signal, rules map[string]Rule) map[string]map[string]string {
	out := map[string]map[string]string{}
	for runtime, dirs := range roots {
		for _, dir := range dirs {
			local := slices.DeleteFunc(slices.Clone(signals), func(s signal.Signal) bool { return s.Dir != dir })
			var ms []Candidate
			for _, r := range c.Rules {
				if r.Category != CategoryPackageManager || r.Runtime != runtime {
					continue
				}
				if cand, ok := score(r, local); ok && !slices.ContainsFunc(ms, func(m Candidate) bool { return m.Name == r.Name }) {
					ms = append(ms, cand)
				}
			}
			if len(ms) == 0 {
				continue
			}
			slices.SortFunc(ms, func(a, b Candidate) int {
				return comparePackageManagers(a, b, rules)
			})
			if out[runtime] == nil {
				out[runtime] = map[string]string{}
			}
			out[runtime][dir] = ms[0].Name
		}
	}
	return out
}

// comparePackageManagers orders candidates best first: lockfile-backed, then
// higher precedence, then higher confidence, then name.
func comparePackageManagers(a, b Candidate, rules map[string]Rule) int {
	if la, lb := a.HasLockfile(), b.HasLockfile(); la != lb {
		if la {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(rules[b.Name].Precedence, rules[a.Name].Precedence); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// score evaluates one rule. Each pattern votes at most once.
func score(r Rule, signals []signal.Signal) (Candidate, bool) {
	var total float64
	var support []signal.Signal
	for _, p := range r.Patterns {
		voted := false
		for _, s := range signals {
			if !p.Match(s) {
				continue
			}
			if !voted {
				total += p.Weight
				voted = true
			}
			support = append(support, s)
		}
	}
	if total == 0 || total+scoreEpsilon < r.MinScore {
		return Candidate{}, false
	}
	return Candidate{
		Name:       r.Name,
		Category:   r.Category,
		Confidence: math.Min(math.Round(total*1000)/1000, 1),
		Signals:    dedupe(support),
	}, true
}

func dedupe(signals []signal.Signal) []signal.Signal {
	slices.SortStableFunc(signals, func(a, b signal.Signal) int { return strings.Compare(a.Path, b.Path) })
	return slices.CompactFunc(signals, func(a, b signal.Signal) bool { return a.Path == b.Path })
}
