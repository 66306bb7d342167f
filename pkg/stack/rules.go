package stack

import (
	"path"
	"regexp"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/signal"
)

// Category classifies a candidate.
type Category string

// Categories.
const (
	CategoryRuntime        Category = "runtime"
	CategoryFramework      Category = "framework"
	CategoryPackageManager Category = "package_manager"
)

// Runtime names used by rules and analyzers.
const (
	RuntimeNode   = "Node.js"
	RuntimePython = "Python"
	RuntimeGo     = "Go"
	RuntimeRust   = "Rust"
)

// Rule describes how to recognize one stack element.
type Rule struct {
	Name     string
	Category Category
	// Runtime gates frameworks and package managers: the rule only yields a
	// candidate when this runtime was detected.
	Runtime string
	// Precedence orders package managers of one ecosystem; higher wins.
	Precedence int
	MinScore   float64
	Patterns   []Pattern
}

// Pattern votes for a rule when any signal matches it.
type Pattern struct {
	// Kind restricts the signal kind. Empty matches any kind.
	Kind signal.Kind
	// Name is a path.Match glob on the signal name. Alternatives are
	// separated by "|".
	Name string
	// Content, when set, must match the signal excerpt.
	Content *regexp.Regexp
	Weight  float64
}

// Match reports whether s satisfies the pattern.
func (p Pattern) Match(s signal.Signal) bool {
	if p.Kind != "" && p.Kind != s.Kind {
		return false
	}
	if p.Name != "" && !matchName(p.Name, s.Name) {
		return false
	}
	if p.Content != nil && !p.Content.MatchString(s.Excerpt) {
		return false
	}
	return true
}

func matchName(globs, name string) bool {
	for _, g := range strings.Split(globs, "|") {
		if ok, _ := path.Match(g, name); ok {
			return true
		}
	}
	return false
}

func file(name string, w float64) Pattern {
	return Pattern{Name: name, Weight: w}
}

func dir(name string, w float64) Pattern {
	return Pattern{Kind: signal.KindDirectory, Name: name, Weight: w}
}

// npmDep matches a dependency key in package.json.
func npmDep(pkg string, w float64) Pattern {
	return Pattern{
		Kind:    signal.KindManifest,
		Name:    "package.json",
		Content: regexp.MustCompile(`"` + regexp.QuoteMeta(pkg) + `"\s*:`),
		Weight:  w,
	}
}

// pyDep matches a distribution name in any Python manifest.
func pyDep(pkg string, w float64) Pattern {
	return Pattern{
		Kind:    signal.KindManifest,
		Content: regexp.MustCompile(`(?im)(^|[\s"',\[])` + regexp.QuoteMeta(pkg) + `\b`),
		Name:    "requirements*.txt|pyproject.toml|setup.py|setup.cfg|Pipfile",
		Weight:  w,
	}
}

// pyImport matches an import in an entry-point script.
func pyImport(module string, w float64) Pattern {
	return Pattern{
		Kind:    signal.KindConfig,
		Name:    "*.py",
		Content: regexp.MustCompile(`(?m)^\s*(from\s+` + regexp.QuoteMeta(module) + `\b|import\s+` + regexp.QuoteMeta(module) + `\b)`),
		Weight:  w,
	}
}

// goDep matches a module path in go.mod.
func goDep(module string, w float64) Pattern {
	return Pattern{
		Kind:    signal.KindManifest,
		Name:    "go.mod",
		Content: regexp.MustCompile(regexp.QuoteMeta(module) + `(/v\d+)?\s`),
		Weight:  w,
	}
}

// crate matches a dependency key in Cargo.toml.
func crate(name string, w float64) Pattern {
	return Pattern{
		Kind:    signal.KindManifest,
		Name:    "Cargo.toml",
		Content: regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(name) + `\s*=`),
		Weight:  w,
	}
}

// DefaultRules is the built-in rule table.
var DefaultRules = []Rule{
	// Runtimes
	{Name: RuntimeNode, Category: CategoryRuntime, MinScore: 0.5, Patterns: []Pattern{
		{Kind: signal.KindManifest, Name: "package.json", Weight: 0.8},
		file("package-lock.json|npm-shrinkwrap.json|yarn.lock|pnpm-lock.yaml", 0.1),
		file("tsconfig.json|jsconfig.json", 0.1),
	}},
	{Name: RuntimePython, Category: CategoryRuntime, MinScore: 0.5, Patterns: []Pattern{
		file("pyproject.toml", 0.6), file("requirements*.txt", 0.6), file("setup.py", 0.6), file("Pipfile", 0.6),
		file("setup.cfg", 0.3), file("manage.py", 0.2),
		file("poetry.lock|Pipfile.lock", 0.2),
	}},
	{Name: RuntimeGo, Category: CategoryRuntime, MinScore: 0.8, Patterns: []Pattern{
		file("go.mod", 0.8), file("go.sum", 0.2),
	}},
	{Name: RuntimeRust, Category: CategoryRuntime, MinScore: 0.8, Patterns: []Pattern{
		file("Cargo.toml", 0.8), file("Cargo.lock", 0.2),
	}},

	// Node.js package managers
	{Name: "pnpm", Category: CategoryPackageManager, Runtime: RuntimeNode, Precedence: 3, MinScore: 0.7, Patterns: []Pattern{
		file("pnpm-lock.yaml", 0.7), file("pnpm-workspace.yaml", 0.1), file("package.json", 0.2),
	}},
	{Name: "yarn", Category: CategoryPackageManager, Runtime: RuntimeNode, Precedence: 2, MinScore: 0.7, Patterns: []Pattern{
		file("yarn.lock", 0.7), file(".yarnrc.yml", 0.1), file("package.json", 0.2),
	}},
	{Name: "npm", Category: CategoryPackageManager, Runtime: RuntimeNode, Precedence: 1, MinScore: 0.3, Patterns: []Pattern{
		file("package-lock.json", 0.6), file("npm-shrinkwrap.json", 0.1), file("package.json", 0.3),
	}},

	// Python package managers
	{Name: "poetry", Category: CategoryPackageManager, Runtime: RuntimePython, Precedence: 3, MinScore: 0.4, Patterns: []Pattern{
		file("poetry.lock", 0.6),
		{Kind: signal.KindManifest, Name: "pyproject.toml", Content: regexp.MustCompile(`(?m)^\[tool\.poetry`), Weight: 0.4},
	}},
	{Name: "pipenv", Category: CategoryPackageManager, Runtime: RuntimePython, Precedence: 2, MinScore: 0.4, Patterns: []Pattern{
		file("Pipfile.lock", 0.6), file("Pipfile", 0.4),
	}},
	{Name: "pip", Category: CategoryPackageManager, Runtime: RuntimePython, Precedence: 1, MinScore: 0.2, Patterns: []Pattern{
		file("requirements*.txt", 0.5), file("setup.py", 0.3), file("pyproject.toml", 0.2),
	}},

	// Go and Rust package managers
	{Name: "go modules", Category: CategoryPackageManager, Runtime: RuntimeGo, Precedence: 1, MinScore: 0.8, Patterns: []Pattern{
		file("go.mod", 0.8), file("go.sum", 0.2),
	}},
	{Name: "cargo", Category: CategoryPackageManager, Runtime: RuntimeRust, Precedence: 1, MinScore: 0.8, Patterns: []Pattern{
		file("Cargo.toml", 0.8), file("Cargo.lock", 0.2),
	}},

	// Node.js frameworks
	{Name: "NestJS", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.6, Patterns: []Pattern{
		npmDep("@nestjs/core", 1), npmDep("@nestjs/common", 0.8), file("nest-cli.json", 0.6),
	}},
	{Name: "React", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.8, Patterns: []Pattern{
		npmDep("react", 1),
	}},
	{Name: "Next.js", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.5, Patterns: []Pattern{
		npmDep("next", 0.8), file("next.config.*", 0.5),
	}},
	{Name: "Angular", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.6, Patterns: []Pattern{
		npmDep("@angular/core", 1), file("angular.json", 0.6),
	}},
	{Name: "Vue", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.8, Patterns: []Pattern{
		npmDep("vue", 1), file("vue.config.js", 0.3), file("nuxt.config.*", 0.3),
	}},
	{Name: "Express", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.8, Patterns: []Pattern{
		npmDep("express", 1),
	}},
	{Name: "React Native", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.6, Patterns: []Pattern{
		npmDep("react-native", 0.8),
		file("metro.config.js", 0.3), file("react-native.config.js", 0.3),
		dir("android", 0.1), dir("ios", 0.1),
	}},
	{Name: "TypeScript", Category: CategoryFramework, Runtime: RuntimeNode, MinScore: 0.5, Patterns: []Pattern{
		file("tsconfig.json", 0.8), npmDep("typescript", 0.5),
	}},

	// Python frameworks
	{Name: "Django", Category: CategoryFramework, Runtime: RuntimePython, MinScore: 0.6, Patterns: []Pattern{
		pyDep("django", 0.8), file("manage.py", 0.6),
	}},
	{Name: "Flask", Category: CategoryFramework, Runtime: RuntimePython, MinScore: 0.5, Patterns: []Pattern{
		pyDep("flask", 0.8), pyImport("flask", 0.5),
	}},
	{Name: "FastAPI", Category: CategoryFramework, Runtime: RuntimePython, MinScore: 0.5, Patterns: []Pattern{
		pyDep("fastapi", 0.8), pyImport("fastapi", 0.5),
	}},

	// Go frameworks
	{Name: "Gin", Category: CategoryFramework, Runtime: RuntimeGo, MinScore: 0.8, Patterns: []Pattern{
		goDep("github.com/gin-gonic/gin", 1),
	}},
	{Name: "Chi", Category: CategoryFramework, Runtime: RuntimeGo, MinScore: 0.8, Patterns: []Pattern{
		goDep("github.com/go-chi/chi", 1),
	}},
	{Name: "Echo", Category: CategoryFramework, Runtime: RuntimeGo, MinScore: 0.8, Patterns: []Pattern{
		goDep("github.com/labstack/echo", 1),
	}},
	{Name: "Cobra", Category: CategoryFramework, Runtime: RuntimeGo, MinScore: 0.8, Patterns: []Pattern{
		goDep("github.com/spf13/cobra", 1),
	}},

	// Rust frameworks
	{Name: "Actix", Category: CategoryFramework, Runtime: RuntimeRust, MinScore: 0.8, Patterns: []Pattern{
		crate("actix-web", 1),
	}},
	{Name: "Axum", Category: CategoryFramework, Runtime: RuntimeRust, MinScore: 0.8, Patterns: []Pattern{
		crate("axum", 1),
	}},
	{Name: "Rocket", Category: CategoryFramework, Runtime: RuntimeRust, MinScore: 0.8, Patterns: []Pattern{
		crate("rocket", 1),
	}},
}
