package cli

import (
	stderrors "errors"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
)

// generateFlags holds the flag values of the generate command.
type generateFlags struct {
	configFile string
	envFile    string

	out       string
	repoName  string
	commitSHA string
	buildID   string
	language  string
	workers   int
	timeout   time.Duration
	disable   []string
	noCache   bool
	runTests  bool

	cacheBackend string
	aiProvider   string
	aiModel      string

	uploadTarget       string
	uploadURL          string
	uploadMethod       string
	uploadAuthType     string
	uploadCustomHeader string

	snykToken    string
	geminiAPIKey string
	uploadToken  string
}

func (f *generateFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "config file (default: <repo>/"+config.DefaultFileName+")")
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file read for credentials and settings")

	fl.StringVarP(&f.out, "out", "o", config.DefaultOutDir, "output directory for the pack")
	fl.StringVar(&f.repoName, "repo-name", "", "repository name (default: directory or remote name)")
	fl.StringVar(&f.commitSHA, "commit-sha", "", "commit SHA (default: HEAD)")
	fl.StringVar(&f.buildID, "build-id", "", "CI build identifier")
	fl.StringVar(&f.language, "language", config.DefaultLanguage, "language of generated documentation")
	fl.IntVarP(&f.workers, "workers", "w", config.DefaultWorkers, "analyzers run concurrently")
	fl.DurationVar(&f.timeout, "timeout", config.DefaultAnalyzerTimeout, "per-analyzer timeout")
	fl.StringSliceVar(&f.disable, "disable", nil, "analyzers to skip (repeatable or comma separated)")
	fl.BoolVar(&f.noCache, "no-cache", false, "disable the documentation cache")
	fl.BoolVar(&f.runTests, "run-tests", false, "execute the test suite and collect results")

	fl.StringVar(&f.cacheBackend, "cache", config.CacheFile, "cache backend: file, memory, redis, none")
	fl.StringVar(&f.aiProvider, "ai-provider", config.AIAuto, "documentation generator: auto, gemini, none")
	fl.StringVar(&f.aiModel, "ai-model", config.DefaultAIModel, "model used for generated documentation")

	fl.StringVar(&f.uploadTarget, "upload-target", config.UploadNone, "upload target: http, s3, mongo (default: none)")
	fl.StringVar(&f.uploadURL, "upload-url", "", "HTTP upload endpoint (implies --upload-target=http)")
	fl.StringVar(&f.uploadMethod, "upload-method", config.MethodZip, "HTTP upload method: zip or individual")
	fl.StringVar(&f.uploadAuthType, "upload-auth-type", config.AuthBearer, "HTTP auth scheme: bearer, sas, custom")
	fl.StringVar(&f.uploadCustomHeader, "upload-custom-header", "", "header carrying the token for --upload-auth-type=custom")

	fl.StringVar(&f.snykToken, "snyk-token", "", "Snyk API token (prefer SNYK_TOKEN)")
	fl.StringVar(&f.geminiAPIKey, "gemini-api-key", "", "Gemini API key (prefer GEMINI_API_KEY)")
	fl.StringVar(&f.uploadToken, "upload-token", "", "upload token (prefer EVIDENCEPACK_UPLOAD_TOKEN)")
}

// loadConfig resolves the run configuration for repo. Later sources win:
// built-in defaults, the TOML file, the environment (process first, then
// the dotenv file), and finally flags the user set explicitly.
func (c *CLI) loadConfig(cmd *cobra.Command, repo string, f *generateFlags) (config.Config, error) {
	cfg := config.Default(repo)

	path := f.configFile
	if path == "" {
		path = config.FindFile(repo)
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(cfg, path); err != nil {
			return cfg, err
		}
	}

	lookup, err := c.envLookup(f.envFile)
	if err != nil {
		return cfg, err
	}
	if cfg, err = config.FromEnv(cfg, lookup); err != nil {
		return cfg, err
	}

	cfg = f.apply(cmd, cfg)
	return cfg, checkDisabled(cfg.Disabled)
}

// checkDisabled rejects analyzer names that match no built-in analyzer.
func checkDisabled(names []string) error {
	var unknown []string
	for _, n := range names {
		if !slices.Contains(analyzers.Names, n) {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown analyzers to disable: %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(analyzers.Names, ", "))
	}
	return nil
}

// envLookup layers the dotenv file under the process environment. A
// missing dotenv file is not an error.
func (c *CLI) envLookup(path string) (config.LookupFunc, error) {
	process := c.LookupEnv
	if process == nil {
		process = func(string) (string, bool) { return "", false }
	}
	if path == "" {
		return process, nil
	}
	dotenv, err := godotenv.Read(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return process, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	return func(key string) (string, bool) {
		if v, ok := process(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// apply overlays the flags the user changed.
func (f *generateFlags) apply(cmd *cobra.Command, cfg config.Config) config.Config {
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}

	set("out", &cfg.OutDir, f.out)
	set("repo-name", &cfg.RepoName, f.repoName)
	set("commit-sha", &cfg.CommitSHA, f.commitSHA)
	set("build-id", &cfg.BuildID, f.buildID)
	set("language", &cfg.Language, f.language)
	set("cache", &cfg.Cache.Backend, f.cacheBackend)
	set("ai-provider", &cfg.AI.Provider, f.aiProvider)
	set("ai-model", &cfg.AI.Model, f.aiModel)
	set("upload-target", &cfg.Upload.Target, f.uploadTarget)
	set("upload-url", &cfg.Upload.URL, f.uploadURL)
	set("upload-method", &cfg.Upload.Method, f.uploadMethod)
	set("upload-auth-type", &cfg.Upload.AuthType, f.uploadAuthType)
	set("upload-custom-header", &cfg.Upload.CustomHeader, f.uploadCustomHeader)

	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("timeout") {
		cfg.AnalyzerTimeout = f.timeout
	}
	if changed("no-cache") {
		cfg.NoCache = f.noCache
	}
	if changed("run-tests") {
		cfg.RunTests = f.runTests
	}
	if changed("disable") {
		var names []string
		for _, d := range f.disable {
			if d = strings.TrimSpace(d); d != "" {
				names = append(names, d)
			}
		}
		cfg = cfg.WithDisabled(names...)
	}
	if changed("upload-url") && !changed("upload-target") && cfg.Upload.Target == config.UploadNone {
		cfg.Upload.Target = config.UploadHTTP
	}

	for _, cred := range []struct {
		flag, name, value string
	}{
		{"snyk-token", config.CredSnyk, f.snykToken},
		{"gemini-api-key", config.CredGemini, f.geminiAPIKey},
		{"upload-token", config.CredUploadToken, f.uploadToken},
	} {
		if changed(cred.flag) && cred.value != "" {
			cfg = cfg.WithCredential(cred.name, cred.value)
		}
	}
	return cfg
}
