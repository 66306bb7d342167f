package pack

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/deps"
	"github.com/matzehuels/evidencepack/pkg/evidence"
)

// Fallback documents, derived from the model alone.

const changelogLimit = 20

func changelog(m evidence.Model) string {
	var b strings.Builder
	b.WriteString("# Changelog\n\n")
	history, ok := evidence.Payload[analyzers.HistoryReport](m, analyzers.NameCommits)
	if !ok {
		fmt.Fprintf(&b, "No change history available (%s).\n", statusText(m, analyzers.NameCommits))
		return b.String()
	}
	if len(history.Tags) > 0 {
		fmt.Fprintf(&b, "Latest tag: `%s`\n\n", history.Tags[0])
	}
	fmt.Fprintf(&b, "Total commits: %d\n\n## Recent changes\n\n", history.TotalCommits)
	for i, c := range history.RecentCommits {
		if i == changelogLimit {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		date, _, _ := strings.Cut(c.Date, "T")
		fmt.Fprintf(&b, "- %s `%s` %s (%s)\n", date, shortSHA(c.SHA), subject, c.Author.Name)
	}
	return b.String()
}

func readmeTemplate(m evidence.Model) string {
	s := m.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orUnknown(s.Repository.Name))
	fmt.Fprintf(&b, "A %s project", s.TechStack.PrimaryLanguage)
	if len(s.TechStack.Frameworks) > 0 {
		fmt.Fprintf(&b, " built with %s", strings.Join(s.TechStack.Frameworks, ", "))
	}
	b.WriteString(".\n\n## Technology stack\n\n")
	b.WriteString(stackTable(s.TechStack))

	if s.Metrics != nil {
		fmt.Fprintf(&b, "\n## Size\n\n%d lines of code in %d files (%s).\n",
			s.Metrics.LinesOfCode, s.Metrics.Files, strings.Join(s.Metrics.Languages, ", "))
	}
	if report, ok := evidence.Payload[deps.Report](m, analyzers.NameDependencies); ok {
		b.WriteString("\n## Dependencies\n\n| Runtime | Root | Package manager | Dependencies | Lockfile |\n|---|---|---|---|---|\n")
		for _, e := range report.Ecosystems {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n", e.Runtime, e.Root, orUnknown(e.PackageManager), e.Total, yesNo(e.LockfilePresent))
		}
	}
	if eco, ok := primaryEcosystem(m); ok && len(eco.Scripts) > 0 {
		b.WriteString("\n## Scripts\n\n")
		for _, name := range sortedKeys(eco.Scripts) {
			fmt.Fprintf(&b, "- `%s`: `%s`\n", name, eco.Scripts[name])
		}
	}
	b.WriteString("\n## Evidence\n\n| Analyzer | Status | Notes |\n|---|---|---|\n")
	for _, a := range s.Analyzers {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", a.Name, a.Status, a.Reason)
	}
	return b.String()
}

func runbookTemplate(m evidence.Model) string {
	s := m.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "# Runbook: %s\n\n", orUnknown(s.Repository.Name))
	fmt.Fprintf(&b, "Revision `%s` on branch `%s`.\n\n", shortSHA(s.Repository.CommitSHA), s.Repository.Branch)

	b.WriteString("## Setup\n\n")
	commands := setupCommands(s.TechStack.PackageManagers)
	if len(commands) == 0 {
		b.WriteString("No package manager detected. Consult the repository documentation.\n")
	}
	for _, c := range commands {
		fmt.Fprintf(&b, "```sh\n%s\n```\n\n", c)
	}

	b.WriteString("## Operations\n\n")
	if eco, ok := primaryEcosystem(m); ok && len(eco.Scripts) > 0 {
		for _, name := range sortedKeys(eco.Scripts) {
			fmt.Fprintf(&b, "- `%s`: `%s`\n", name, eco.Scripts[name])
		}
	} else {
		b.WriteString("- Start, stop and health-check procedures are not documented yet.\n")
	}

	b.WriteString("\n## Incident checklist\n\n")
	b.WriteString("1. Confirm the deployed revision matches the commit above.\n")
	b.WriteString("2. Check recent changes in `change/changelog.md`.\n")
	b.WriteString("3. Review open findings in `security/deps-sca.json`.\n")
	return b.String()
}

func architectureTemplate(m evidence.Model) string {
	s := m.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "# Architecture: %s\n\n", orUnknown(s.Repository.Name))
	b.WriteString("## Components\n\n")
	roots := m.Profile.Roots()
	if len(roots) == 0 {
		b.WriteString("No components detected.\n")
	}
	for _, rt := range sortedKeys(roots) {
		for _, root := range roots[rt] {
			fmt.Fprintf(&b, "- `%s`: %s component", root, rt)
			if pm, ok := s.TechStack.PackageManagers[rt]; ok {
				fmt.Fprintf(&b, " managed with %s", pm)
			}
			b.WriteString("\n")
		}
	}
	if len(s.TechStack.Frameworks) > 0 {
		fmt.Fprintf(&b, "\n## Frameworks\n\n%s\n", strings.Join(s.TechStack.Frameworks, ", "))
	}
	b.WriteString("\n## Diagrams\n\n")
	b.WriteString("- `diagrams/c4_context.mmd`: system context\n")
	b.WriteString("- `diagrams/c4_container.mmd`: containers\n")
	b.WriteString("- `diagrams/sequence.puml`: main request flow\n")
	return b.String()
}

func c4ContextTemplate(m evidence.Model) string {
	name := orUnknown(m.Facts.Name)
	var b strings.Builder
	b.WriteString("C4Context\n")
	fmt.Fprintf(&b, "  title System Context for %s\n", name)
	b.WriteString("  Person(user, \"User\", \"Uses the system\")\n")
	fmt.Fprintf(&b, "  System(system, %q, %q)\n", name, m.Profile.PrimaryLanguage()+" application")
	b.WriteString("  Rel(user, system, \"Uses\")\n")
	return b.String()
}

func c4ContainerTemplate(m evidence.Model) string {
	name := orUnknown(m.Facts.Name)
	var b strings.Builder
	b.WriteString("C4Container\n")
	fmt.Fprintf(&b, "  title Containers of %s\n", name)
	b.WriteString("  Person(user, \"User\")\n")
	fmt.Fprintf(&b, "  System_Boundary(boundary, %q) {\n", name)
	ids := []string{}
	roots := m.Profile.Roots()
	for _, rt := range sortedKeys(roots) {
		for _, root := range roots[rt] {
			id := containerID(rt, root)
			ids = append(ids, id)
			fmt.Fprintf(&b, "    Container(%s, %q, %q)\n", id, root, rt)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, "app")
		fmt.Fprintf(&b, "    Container(app, %q, %q)\n", name, m.Profile.PrimaryLanguage())
	}
	b.WriteString("  }\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "  Rel(user, %s, \"Uses\")\n", id)
	}
	return b.String()
}

func sequenceTemplate(m evidence.Model) string {
	var b strings.Builder
	b.WriteString("@startuml\n")
	fmt.Fprintf(&b, "title %s request flow\n", orUnknown(m.Facts.Name))
	b.WriteString("actor User\n")
	fmt.Fprintf(&b, "participant %q as App\n", orUnknown(m.Facts.Name))
	b.WriteString("User -> App: request\n")
	b.WriteString("App --> User: response\n")
	b.WriteString("@enduml\n")
	return b.String()
}

func stackTable(ts evidence.TechStack) string {
	var b strings.Builder
	b.WriteString("| Runtime | Package manager |\n|---|---|\n")
	if len(ts.Runtimes) == 0 {
		b.WriteString("| none detected | |\n")
	}
	for _, rt := range ts.Runtimes {
		fmt.Fprintf(&b, "| %s | %s |\n", rt, ts.PackageManagers[rt])
	}
	return b.String()
}

var installCommands = map[string]string{
	"npm":        "npm ci",
	"pnpm":       "pnpm install --frozen-lockfile",
	"yarn":       "yarn install --frozen-lockfile",
	"pip":        "pip install -r requirements.txt",
	"pipenv":     "pipenv sync",
	"poetry":     "poetry install",
	"go modules": "go mod download",
	"cargo":      "cargo fetch",
}

func setupCommands(managers map[string]string) []string {
	var out []string
	for _, rt := range sortedKeys(managers) {
		if c, ok := installCommands[managers[rt]]; ok {
			out = append(out, c)
		}
	}
	return out
}

func primaryEcosystem(m evidence.Model) (deps.Ecosystem, bool) {
	report, ok := evidence.Payload[deps.Report](m, analyzers.NameDependencies)
	if !ok {
		return deps.Ecosystem{}, false
	}
	primary := m.Profile.PrimaryRuntime()
	for _, e := range report.Ecosystems {
		if e.Runtime == primary {
			return e, true
		}
	}
	return deps.Ecosystem{}, false
}

func statusText(m evidence.Model, name string) string {
	r, ok := m.Result(name)
	if !ok {
		return ReasonNotRun
	}
	if r.Status == analysis.StatusOK || r.Reason == "" {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Reason)
}

func containerID(runtime, root string) string {
	id := strings.ToLower(runtime + "_" + root)
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, id)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
