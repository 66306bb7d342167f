package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/observability"
	"github.com/matzehuels/evidencepack/pkg/pack"
	"github.com/matzehuels/evidencepack/pkg/upload"
)

type fakeAnalyzer struct {
	info analysis.Info
	fn   func(ctx context.Context, req analysis.Request) analysis.Result
}

func (f fakeAnalyzer) Info() analysis.Info { return f.info }

func (f fakeAnalyzer) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	return f.fn(ctx, req)
}

func returns(name string, r analysis.Result) fakeAnalyzer {
	return fakeAnalyzer{
		info: analysis.Info{Name: name, Generic: true},
		fn:   func(context.Context, analysis.Request) analysis.Result { return r },
	}
}

type recordingHooks struct {
	mu     sync.Mutex
	stages []string
}

func (h *recordingHooks) OnStageStart(context.Context, string) {}

func (h *recordingHooks) OnStageComplete(_ context.Context, stage string, _ time.Duration, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage)
}

type fakeUploader struct {
	got upload.Pack
	err error
}

func (f *fakeUploader) Name() string { return "fake" }

func (f *fakeUploader) Upload(_ context.Context, p upload.Pack) (*upload.Result, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &upload.Result{Target: "fake", Files: len(p.Manifest.Entries)}, nil
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(repo, out string) config.Config {
	cfg := config.Default(repo)
	cfg.OutDir = out
	cfg.AI.Provider = config.AINone
	cfg.Cache.Backend = config.CacheNone
	return cfg
}

func testRunner() *Runner {
	r := NewRunner(nil, nil, log.New(&bytes.Buffer{}))
	r.Clock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	r.RunID = func() string { return "00000000-0000-4000-8000-000000000001" }
	return r
}

func TestRunDegradedEmptyRepo(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetPipelineHooks(hooks)
	t.Cleanup(observability.Reset)

	repo := t.TempDir()
	out := filepath.Join(t.TempDir(), "pack")
	res, err := testRunner().Run(context.Background(), testConfig(repo, out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Profile.Empty() {
		t.Errorf("profile = %v, want empty", res.Profile.Candidates())
	}
	if res.Upload != nil {
		t.Error("no upload target configured, but Upload is set")
	}
	if _, err := pack.Verify(out); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, rel := range pack.Layout {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	want := []string{StageExtract, StageClassify, StageFacts, StageAnalyze, StageAggregate, StageAssemble}
	if strings.Join(hooks.stages, ",") != strings.Join(want, ",") {
		t.Errorf("stages = %v, want %v", hooks.stages, want)
	}

	for _, name := range []string{analyzers.NameDependencies, analyzers.NameTests, analyzers.NameCodeScan} {
		r, ok := res.Model.Result(name)
		if !ok || r.Status != analysis.StatusSkipped {
			t.Errorf("%s = %+v, want skipped", name, r)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json":      `{"name":"web","dependencies":{"react":"^18.0.0"}}`,
		"package-lock.json": `{"lockfileVersion":3}`,
	})
	fakes := []analysis.Analyzer{
		returns(analyzers.NameMetrics, analysis.OK(analyzers.MetricsReport{LinesOfCode: 42, Files: 2})),
		returns(analyzers.NameCommits, analysis.Skipped("not a git repository")),
	}

	read := func(out string) map[string][]byte {
		files := map[string][]byte{}
		for _, rel := range []string{pack.FileSummary, pack.FileRepoFacts, pack.FileChecksums} {
			data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
			if err != nil {
				t.Fatal(err)
			}
			files[rel] = data
		}
		return files
	}

	var runs []map[string][]byte
	for i := 0; i < 2; i++ {
		out := filepath.Join(t.TempDir(), "pack")
		r := testRunner()
		r.Analyzers = fakes
		if _, err := r.Run(context.Background(), testConfig(repo, out)); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		runs = append(runs, read(out))
	}
	for rel, data := range runs[0] {
		if !bytes.Equal(data, runs[1][rel]) {
			t.Errorf("%s differs between runs:\n%s\n---\n%s", rel, data, runs[1][rel])
		}
	}
}

func TestRunVulnerabilityTimeout(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json":      `{"name":"web","scripts":{"test":"jest"}}`,
		"package-lock.json": `{"lockfileVersion":3}`,
	})
	hang := fakeAnalyzer{
		info: analysis.Info{Name: analyzers.NameVulnerabilities, Generic: true, Timeout: 20 * time.Millisecond},
		fn: func(ctx context.Context, _ analysis.Request) analysis.Result {
			<-ctx.Done()
			return analysis.Failed(ctx.Err().Error())
		},
	}
	r := testRunner()
	r.Analyzers = []analysis.Analyzer{
		hang,
		returns(analyzers.NameTests, analysis.OK(analyzers.QualityReport{
			Framework: analyzers.FrameworkJest,
			Tests:     &analyzers.TestResults{Total: 3, Passed: 3},
		})),
	}

	out := filepath.Join(t.TempDir(), "pack")
	res, err := r.Run(context.Background(), testConfig(repo, out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	vuln, _ := res.Model.Result(analyzers.NameVulnerabilities)
	if vuln.Status != analysis.StatusFailed || !strings.Contains(vuln.Reason, "timed out") {
		t.Errorf("vulnerabilities = %s (%s), want failed with timeout", vuln.Status, vuln.Reason)
	}
	tests, _ := res.Model.Result(analyzers.NameTests)
	if tests.Status != analysis.StatusOK {
		t.Errorf("tests = %s, want ok", tests.Status)
	}
	if _, err := pack.Verify(out); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRunInvalidRepo(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		repo string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"not a directory", file},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "pack")
			_, err := testRunner().Run(context.Background(), testConfig(tt.repo, out))
			if !errors.Is(err, errors.ErrCodeInvalidRepo) {
				t.Fatalf("Run error = %v, want INVALID_REPO", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("output written despite invalid input")
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	repo := t.TempDir()
	out := filepath.Join(t.TempDir(), "pack")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testRunner().Run(ctx, testConfig(repo, out))
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(out, pack.FileChecksums)); !os.IsNotExist(err) {
		t.Error("manifest written after cancellation")
	}
}

func TestRunUpload(t *testing.T) {
	repo := t.TempDir()
	cfg := testConfig(repo, filepath.Join(t.TempDir(), "pack"))
	cfg.RepoName = "svc"
	cfg.CommitSHA = "abcdef1234"

	u := &fakeUploader{}
	r := testRunner()
	r.Analyzers = []analysis.Analyzer{}
	r.Uploader = u
	res, err := r.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.got.Repo != "svc" || u.got.Commit != "abcdef1234" {
		t.Errorf("uploaded pack = %s@%s", u.got.Repo, u.got.Commit)
	}
	if res.Upload == nil || res.Upload.Files != len(pack.Layout) {
		t.Errorf("Upload = %+v", res.Upload)
	}
	if u.got.Summary.Repository.Name != "svc" || u.got.Build.RunID != "00000000-0000-4000-8000-000000000001" {
		t.Errorf("upload metadata = %+v / %+v", u.got.Summary.Repository, u.got.Build)
	}
}

func TestRunUploadFailureKeepsPack(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pack")
	r := testRunner()
	r.Analyzers = []analysis.Analyzer{}
	r.Uploader = &fakeUploader{err: errors.New(errors.ErrCodeUpload, "endpoint unavailable")}

	res, err := r.Run(context.Background(), testConfig(t.TempDir(), out))
	if !errors.Is(err, errors.ErrCodeUpload) {
		t.Fatalf("Run error = %v, want UPLOAD_FAILED", err)
	}
	if res == nil || res.Manifest == nil {
		t.Fatal("result should describe the assembled pack")
	}
	if _, err := pack.Verify(out); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRunIgnoresNestedOutput(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"out/package.json": `{"name":"stale"}`,
	})
	r := testRunner()
	r.Analyzers = []analysis.Analyzer{}
	res, err := r.Run(context.Background(), testConfig(repo, filepath.Join(repo, "out", "pack")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Signals != 0 {
		t.Errorf("Signals = %d, want 0 (output directory should be ignored)", res.Stats.Signals)
	}
}

func TestNestedDir(t *testing.T) {
	tests := []struct {
		root, dir string
		want      string
		ok        bool
	}{
		{"/repo", "/repo/out", "out", true},
		{"/repo", "/repo/out/pack", "out", true},
		{"/repo", "/elsewhere/pack", "", false},
		{"/repo", "/repo", "", false},
		{"/repo", "/repository/pack", "", false},
	}
	for _, tt := range tests {
		got, ok := nestedDir(tt.root, tt.dir)
		if got != tt.want || ok != tt.ok {
			t.Errorf("nestedDir(%q, %q) = %q, %v; want %q, %v", tt.root, tt.dir, got, ok, tt.want, tt.ok)
		}
	}
}
