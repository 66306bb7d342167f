package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/evidencepack/pkg/errors"
)

// fileConfig mirrors evidencepack.toml. It has no credential fields, so a
// secret placed in the file is rejected as an unknown key.
type fileConfig struct {
	Output struct {
		Dir string `toml:"dir"`
	} `toml:"output"`
	Repository struct {
		Name string `toml:"name"`
	} `toml:"repository"`
	Analysis struct {
		Workers  int               `toml:"workers"`
		Timeout  string            `toml:"timeout"`
		Timeouts map[string]string `toml:"timeouts"`
		Disabled []string          `toml:"disabled"`
		RunTests *bool             `toml:"run_tests"`
		Language string            `toml:"language"`
	} `toml:"analysis"`
	Cache struct {
		Backend string `toml:"backend"`
		Dir     string `toml:"dir"`
		TTL     string `toml:"ttl"`
		Prefix  string `toml:"prefix"`
		Disable *bool  `toml:"disable"`
	} `toml:"cache"`
	AI struct {
		Provider string `toml:"provider"`
		Model    string `toml:"model"`
	} `toml:"ai"`
	Upload struct {
		Target       string `toml:"target"`
		URL          string `toml:"url"`
		Method       string `toml:"method"`
		AuthType     string `toml:"auth_type"`
		CustomHeader string `toml:"custom_header"`
		S3           struct {
			Endpoint string `toml:"endpoint"`
			Bucket   string `toml:"bucket"`
			Region   string `toml:"region"`
			Prefix   string `toml:"prefix"`
			UseSSL   *bool  `toml:"use_ssl"`
		} `toml:"s3"`
		Mongo struct {
			Database   string `toml:"database"`
			Collection string `toml:"collection"`
		} `toml:"mongo"`
	} `toml:"upload"`
}

// LoadFile overlays the TOML file at path onto cfg.
func LoadFile(cfg Config, path string) (Config, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return fc.apply(cfg)
}

func (fc fileConfig) apply(cfg Config) (Config, error) {
	setString(&cfg.OutDir, fc.Output.Dir)
	setString(&cfg.RepoName, fc.Repository.Name)
	setString(&cfg.Language, fc.Analysis.Language)
	if fc.Analysis.Workers != 0 {
		cfg.Workers = fc.Analysis.Workers
	}
	if fc.Analysis.Timeout != "" {
		d, err := parseDuration("analysis.timeout", fc.Analysis.Timeout)
		if err != nil {
			return cfg, err
		}
		cfg.AnalyzerTimeout = d
	}
	for name, raw := range fc.Analysis.Timeouts {
		d, err := parseDuration("analysis.timeouts."+name, raw)
		if err != nil {
			return cfg, err
		}
		cfg = cfg.WithTimeout(name, d)
	}
	if len(fc.Analysis.Disabled) > 0 {
		cfg = cfg.WithDisabled(fc.Analysis.Disabled...)
	}
	if fc.Analysis.RunTests != nil {
		cfg.RunTests = *fc.Analysis.RunTests
	}

	setString(&cfg.Cache.Backend, fc.Cache.Backend)
	setString(&cfg.Cache.Dir, fc.Cache.Dir)
	setString(&cfg.Cache.Prefix, fc.Cache.Prefix)
	if fc.Cache.TTL != "" {
		d, err := parseDuration("cache.ttl", fc.Cache.TTL)
		if err != nil {
			return cfg, err
		}
		cfg.Cache.TTL = d
	}
	if fc.Cache.Disable != nil {
		cfg.NoCache = *fc.Cache.Disable
	}

	setString(&cfg.AI.Provider, fc.AI.Provider)
	setString(&cfg.AI.Model, fc.AI.Model)

	u := fc.Upload
	setString(&cfg.Upload.Target, u.Target)
	setString(&cfg.Upload.URL, u.URL)
	setString(&cfg.Upload.Method, u.Method)
	setString(&cfg.Upload.AuthType, u.AuthType)
	setString(&cfg.Upload.CustomHeader, u.CustomHeader)
	setString(&cfg.Upload.S3.Endpoint, u.S3.Endpoint)
	setString(&cfg.Upload.S3.Bucket, u.S3.Bucket)
	setString(&cfg.Upload.S3.Region, u.S3.Region)
	setString(&cfg.Upload.S3.Prefix, u.S3.Prefix)
	if u.S3.UseSSL != nil {
		cfg.Upload.S3.UseSSL = *u.S3.UseSSL
	}
	setString(&cfg.Upload.Mongo.Database, u.Mongo.Database)
	setString(&cfg.Upload.Mongo.Collection, u.Mongo.Collection)
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envCredentials maps credential names to variables; the first set variable wins.
var envCredentials = []struct {
	name string
	vars []string
}{
	{CredSnyk, []string{"SNYK_TOKEN"}},
	{CredGemini, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}},
	{CredUploadToken, []string{"EVIDENCEPACK_UPLOAD_TOKEN", "EVIDENCE_UPLOAD_TOKEN"}},
	{CredS3AccessKey, []string{"EVIDENCEPACK_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID"}},
	{CredS3SecretKey, []string{"EVIDENCEPACK_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"}},
	{CredMongoURI, []string{"EVIDENCEPACK_MONGO_URI"}},
	{CredRedisURL, []string{"EVIDENCEPACK_REDIS_URL", "REDIS_URL"}},
}

// FromEnv overlays environment variables onto cfg. The CLI passes
// os.LookupEnv after loading .env; tests pass a map lookup.
func FromEnv(cfg Config, lookup LookupFunc) (Config, error) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				return v
			}
		}
		return ""
	}

	setString(&cfg.OutDir, first("EVIDENCEPACK_OUT"))
	setString(&cfg.RepoName, first("EVIDENCEPACK_REPO_NAME", "BUILD_REPOSITORY_NAME"))
	setString(&cfg.CommitSHA, first("EVIDENCEPACK_COMMIT_SHA", "BUILD_SOURCEVERSION"))
	setString(&cfg.BuildID, first("EVIDENCEPACK_BUILD_ID", "BUILD_BUILDID"))
	setString(&cfg.CIURL, first("SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"))
	setString(&cfg.Language, first("EVIDENCEPACK_LANGUAGE"))

	if v := first("EVIDENCEPACK_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.New(errors.ErrCodeInvalidConfig, "EVIDENCEPACK_WORKERS: not an integer: %q", v)
		}
		cfg.Workers = n
	}
	if v := first("EVIDENCEPACK_TIMEOUT"); v != "" {
		d, err := parseDuration("EVIDENCEPACK_TIMEOUT", v)
		if err != nil {
			return cfg, err
		}
		cfg.AnalyzerTimeout = d
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"EVIDENCEPACK_RUN_TESTS", &cfg.RunTests},
		{"EVIDENCEPACK_NO_CACHE", &cfg.NoCache},
	} {
		if v := first(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, errors.New(errors.ErrCodeInvalidConfig, "%s: not a boolean: %q", b.key, v)
			}
			*b.dst = parsed
		}
	}
	if v := first("EVIDENCEPACK_DISABLE"); v != "" {
		cfg = cfg.WithDisabled(splitList(v)...)
	}

	setString(&cfg.Cache.Backend, first("EVIDENCEPACK_CACHE_BACKEND"))
	setString(&cfg.Cache.Dir, first("EVIDENCEPACK_CACHE_DIR"))
	setString(&cfg.Cache.Prefix, first("EVIDENCEPACK_CACHE_PREFIX"))
	setString(&cfg.AI.Provider, first("EVIDENCEPACK_AI_PROVIDER"))
	setString(&cfg.AI.Model, first("EVIDENCEPACK_AI_MODEL"))

	setString(&cfg.Upload.Target, first("EVIDENCEPACK_UPLOAD_TARGET"))
	setString(&cfg.Upload.URL, first("EVIDENCEPACK_UPLOAD_URL", "EVIDENCE_UPLOAD_URL"))
	setString(&cfg.Upload.Method, first("EVIDENCEPACK_UPLOAD_METHOD"))
	setString(&cfg.Upload.AuthType, first("EVIDENCEPACK_UPLOAD_AUTH_TYPE"))
	setString(&cfg.Upload.CustomHeader, first("EVIDENCEPACK_UPLOAD_CUSTOM_HEADER"))
	setString(&cfg.Upload.S3.Endpoint, first("EVIDENCEPACK_S3_ENDPOINT"))
	setString(&cfg.Upload.S3.Bucket, first("EVIDENCEPACK_S3_BUCKET"))
	setString(&cfg.Upload.S3.Region, first("EVIDENCEPACK_S3_REGION", "AWS_REGION"))
	setString(&cfg.Upload.S3.Prefix, first("EVIDENCEPACK_S3_PREFIX"))
	setString(&cfg.Upload.Mongo.Database, first("EVIDENCEPACK_MONGO_DATABASE"))
	setString(&cfg.Upload.Mongo.Collection, first("EVIDENCEPACK_MONGO_COLLECTION"))

	// A URL target implies HTTP upload, matching the old --upload-url behaviour.
	if cfg.Upload.Target == UploadNone && cfg.Upload.URL != "" {
		cfg.Upload.Target = UploadHTTP
	}

	for _, c := range envCredentials {
		if v := first(c.vars...); v != "" {
			cfg = cfg.WithCredential(c.name, v)
		}
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "%s: invalid duration %q", field, v)
	}
	return d, nil
}
