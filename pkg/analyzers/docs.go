package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/observability"
)

// Document kinds.
const (
	DocReadme       = "readme"
	DocRunbook      = "runbook"
	DocArchitecture = "architecture"
	DocC4Context    = "c4-context"
	DocC4Container  = "c4-container"
	DocSequence     = "sequence"
)

// DocKinds lists every generated document.
var DocKinds = []string{DocReadme, DocRunbook, DocArchitecture, DocC4Context, DocC4Container, DocSequence}

const (
	readmeContextLimit = 3000
	docsConcurrency    = 3
)

// DocsOptions configures the docs analyzer.
type DocsOptions struct {
	Provider  string
	Model     string
	Language  string
	Cache     cache.Cache
	Keyer     cache.Keyer
	TTL       time.Duration
	Generator Generator
}

// Docs generates documentation and diagrams with an LLM. Each document is
// cached by kind, model and prompt.
type Docs struct {
	opts DocsOptions
}

// NewDocs returns the docs analyzer.
func NewDocs(opts DocsOptions) *Docs {
	if opts.Model == "" {
		opts.Model = config.DefaultAIModel
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.TTL <= 0 {
		opts.TTL = cache.TTLDocs
	}
	return &Docs{opts: opts}
}

func (d *Docs) Info() analysis.Info {
	return analysis.Info{Name: NameDocs, Generic: true, Credential: config.CredGemini}
}

func (d *Docs) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	if d.opts.Provider == config.AINone {
		return analysis.Skipped("AI documentation disabled by configuration")
	}
	gen := d.opts.Generator
	if gen == nil {
		key, _ := req.Credentials.Get(config.CredGemini)
		g, err := NewGeminiGenerator(ctx, key, d.opts.Model)
		if err != nil {
			return analysis.Failed(err.Error())
		}
		gen = g
	}

	pc := newPromptContext(req, d.opts.Language)
	var (
		mu       sync.Mutex
		docs     = map[string]string{}
		warnings []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(docsConcurrency)
	for _, kind := range DocKinds {
		g.Go(func() error {
			text, err := d.generate(gctx, gen, buildPrompt(kind, pc))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", kind, err))
				return nil
			}
			docs[kind] = text
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return analysis.Failed(err.Error())
	}

	slices.Sort(warnings)
	if len(docs) == 0 {
		return analysis.Failedf("no documents generated: %s", strings.Join(warnings, "; "))
	}
	report := DocsReport{
		Model:        gen.Model(),
		Readme:       docs[DocReadme],
		Runbook:      docs[DocRunbook],
		Architecture: docs[DocArchitecture],
		C4Context:    docs[DocC4Context],
		C4Container:  docs[DocC4Container],
		Sequence:     docs[DocSequence],
	}
	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

func (d *Docs) generate(ctx context.Context, gen Generator, p Prompt) (string, error) {
	key := d.opts.Keyer.DocsKey(p.Kind, gen.Model(), p)
	if data, ok, err := d.opts.Cache.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "docs")
		return string(data), nil
	}
	observability.Cache().OnCacheMiss(ctx, "docs")

	raw, err := gen.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	text, err := postProcess(p.Kind, raw)
	if err != nil {
		return "", err
	}
	if err := d.opts.Cache.Set(ctx, key, []byte(text), d.opts.TTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "docs", len(text))
	}
	return text, nil
}

// promptContext is the repository description shared by every prompt.
type promptContext struct {
	Name            string            `json:"name"`
	PrimaryLanguage string            `json:"primary_language"`
	Runtimes        []string          `json:"runtimes"`
	Frameworks      []string          `json:"frameworks"`
	PackageManagers map[string]string `json:"package_managers"`
	Readme          string            `json:"readme,omitempty"`
	language        string
}

func newPromptContext(req analysis.Request, language string) promptContext {
	return promptContext{
		Name:            req.Facts.Name,
		PrimaryLanguage: req.Profile.PrimaryLanguage(),
		Runtimes:        req.Profile.Runtimes(),
		Frameworks:      req.Profile.Frameworks(),
		PackageManagers: req.Profile.PackageManagers(),
		Readme:          readmeExcerpt(req.RepoPath),
		language:        language,
	}
}

func readmeExcerpt(repo string) string {
	for _, name := range []string{"README.md", "README", "README.txt", "README.rst"} {
		data, err := os.ReadFile(filepath.Join(repo, name))
		if err != nil {
			continue
		}
		s := strings.ToValidUTF8(string(data), "")
		if len(s) > readmeContextLimit {
			s = strings.ToValidUTF8(s[:readmeContextLimit], "") + "\n\n[... README truncated ...]"
		}
		return s
	}
	return ""
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"pt": "Portuguese",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"ja": "Japanese",
	"zh": "Chinese",
}

func languageInstruction(code string) string {
	code = strings.ToLower(code)
	if code == "" {
		code = config.DefaultLanguage
	}
	name, ok := languageNames[code]
	if !ok {
		name = strings.ToUpper(code)
	}
	return fmt.Sprintf("Write all text, labels and descriptions in %s (%s).", name, code)
}

var docSpecs = map[string]struct {
	system string
	task   string
}{
	DocReadme: {
		system: "You are a technical writer. Produce a professional README.md in Markdown. When an existing README is provided, keep its facts and extend it.",
		task:   "Write a README with an overview, the technology stack, setup, usage, testing and deployment sections.",
	},
	DocRunbook: {
		system: "You are a site reliability engineer. Produce an operational runbook in Markdown.",
		task:   "Write a runbook covering startup and shutdown, configuration, health checks, common incidents with their remediation, and escalation.",
	},
	DocArchitecture: {
		system: "You are a software architect. Produce an architecture overview in Markdown.",
		task:   "Describe the main components, their responsibilities, data flow, external dependencies and deployment topology.",
	},
	DocC4Context: {
		system: "You are a software architect. Produce C4 context diagrams in Mermaid syntax.",
		task:   "Draw a C4Context diagram showing the system, its users and the external systems it talks to. Reply with a single ```mermaid code block.",
	},
	DocC4Container: {
		system: "You are a software architect. Produce C4 container diagrams in Mermaid syntax.",
		task:   "Draw a C4Container diagram showing the deployable containers, their technologies and how they communicate. Reply with a single ```mermaid code block.",
	},
	DocSequence: {
		system: "You are a software architect. Produce sequence diagrams in PlantUML syntax.",
		task:   "Draw a sequence diagram of the system's main request flow. Reply with a single ```plantuml code block.",
	},
}

func buildPrompt(kind string, pc promptContext) Prompt {
	spec := docSpecs[kind]
	facts, _ := json.MarshalIndent(pc, "", "  ")

	var b strings.Builder
	b.WriteString(languageInstruction(pc.language))
	b.WriteString("\n\n")
	b.WriteString(spec.task)
	b.WriteString("\n\nRepository facts:\n")
	b.Write(facts)
	return Prompt{Kind: kind, System: spec.system, User: b.String()}
}

var codeBlockRE = regexp.MustCompile("(?s)```([a-zA-Z]*)[ \t]*\n(.*?)```")

// extractCodeBlock returns the body of the first fenced block tagged lang,
// or of the first untagged block.
func extractCodeBlock(text, lang string) (string, bool) {
	var untagged string
	found := false
	for _, m := range codeBlockRE.FindAllStringSubmatch(text, -1) {
		if strings.EqualFold(m[1], lang) {
			return strings.TrimSpace(m[2]), true
		}
		if m[1] == "" && !found {
			untagged, found = strings.TrimSpace(m[2]), true
		}
	}
	return untagged, found
}

func postProcess(kind, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	switch kind {
	case DocC4Context, DocC4Container:
		code, ok := extractCodeBlock(text, "mermaid")
		if !ok {
			return "", fmt.Errorf("response contains no mermaid diagram")
		}
		return code + "\n", nil
	case DocSequence:
		code, ok := extractCodeBlock(text, "plantuml")
		if !ok {
			code = text
		}
		if !strings.HasPrefix(code, "@startuml") {
			code = "@startuml\n" + code
		}
		if !strings.HasSuffix(code, "@enduml") {
			code += "\n@enduml"
		}
		return code + "\n", nil
	default:
		return text + "\n", nil
	}
}
