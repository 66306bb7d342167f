package upload

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/facts"
	"github.com/matzehuels/evidencepack/pkg/pack"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

const secret = "tok-3f9a1c"

var fastRetry = cache.RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}

func assembled(t *testing.T) Pack {
	t.Helper()
	m := evidence.Aggregate(stack.Profile{}, nil, facts.Facts{Name: "demo", CommitSHA: "abc1234567"}, evidence.Meta{
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RunID:       "run-1",
	})
	out := filepath.Join(t.TempDir(), "pack")
	manifest, err := (&pack.Assembler{Logger: log.New(io.Discard)}).Assemble(context.Background(), m, out)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return Pack{Dir: out, Repo: "demo", Commit: "abc1234567", Manifest: manifest, Summary: m.Summary(), Build: m.Build()}
}

func newHTTP(url, method, auth string, logs *bytes.Buffer) *HTTP {
	h := NewHTTP(config.UploadConfig{URL: url, Method: method, AuthType: auth, CustomHeader: "X-Token"}, secret, log.New(logs))
	h.Retry = fastRetry
	return h
}

func TestHTTPUploadZip(t *testing.T) {
	p := assembled(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/evidence/demo/abc1234567" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+secret {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got := r.FormValue("repo_name"); got != "demo" {
			t.Errorf("repo_name = %q, want demo", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if hdr.Filename != "evidence-demo-abc1234.zip" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Errorf("zip: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(zr.File) != len(pack.Layout)+1 {
			t.Errorf("zip has %d entries, want %d", len(zr.File), len(pack.Layout)+1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://portal.example/packs/42"}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	res, err := newHTTP(srv.URL, config.MethodZip, config.AuthBearer, &logs).Upload(context.Background(), p)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.PublishedURL != "https://portal.example/packs/42" {
		t.Errorf("PublishedURL = %q", res.PublishedURL)
	}
	if res.Method != config.MethodZip || res.Bytes == 0 {
		t.Errorf("Result = %+v", res)
	}
	if strings.Contains(logs.String(), secret) {
		t.Error("token leaked into logs")
	}
}

func TestHTTPUploadIndividual(t *testing.T) {
	p := assembled(t)
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if got := r.Header.Get("X-Token"); got != secret {
			t.Errorf("X-Token = %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("custom auth should not set Authorization")
		}
		mu.Lock()
		paths = append(paths, strings.TrimPrefix(r.URL.Path, "/evidence/demo/abc1234567/"))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	res, err := newHTTP(srv.URL+"/", config.MethodIndividual, config.AuthCustom, &logs).Upload(context.Background(), p)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := append(slices.Clone(pack.Layout), pack.FileChecksums)
	if !slices.Equal(paths, want) {
		t.Errorf("uploaded %v, want %v", paths, want)
	}
	if res.Files != len(want) {
		t.Errorf("Files = %d, want %d", res.Files, len(want))
	}
	if res.PublishedURL != srv.URL+"/evidence/demo/abc1234567" {
		t.Errorf("PublishedURL = %q", res.PublishedURL)
	}
}

func TestHTTPAuthHeaders(t *testing.T) {
	tests := []struct {
		auth   string
		header string
		want   string
	}{
		{config.AuthBearer, "Authorization", "Bearer " + secret},
		{config.AuthSAS, "Authorization", "SharedAccessSignature " + secret},
		{config.AuthCustom, "X-Token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.auth, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			newHTTP("https://example.com", config.MethodZip, tt.auth, &bytes.Buffer{}).authorize(req)
			if got := req.Header.Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	h := NewHTTP(config.UploadConfig{URL: "https://example.com", AuthType: config.AuthBearer}, "", nil)
	h.authorize(req)
	if req.Header.Get("Authorization") != "" {
		t.Error("empty token should send no credentials")
	}
}

func TestHTTPRetriesServerErrors(t *testing.T) {
	p := assembled(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Location", "https://portal.example/p/1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res, err := newHTTP(srv.URL, config.MethodZip, config.AuthBearer, &bytes.Buffer{}).Upload(context.Background(), p)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if res.PublishedURL != "https://portal.example/p/1" {
		t.Errorf("PublishedURL = %q", res.PublishedURL)
	}
}

func TestHTTPClientErrorsFail(t *testing.T) {
	p := assembled(t)
	tests := []struct {
		name   string
		status int
		calls  int32
	}{
		{"bad request", http.StatusBadRequest, 1},
		{"unauthorized", http.StatusUnauthorized, 1},
		{"persistent 5xx", http.StatusBadGateway, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			var logs bytes.Buffer
			_, err := newHTTP(srv.URL, config.MethodZip, config.AuthBearer, &logs).Upload(context.Background(), p)
			if !errors.Is(err, errors.ErrCodeUpload) {
				t.Fatalf("Upload error = %v, want UPLOAD_FAILED", err)
			}
			if calls.Load() != tt.calls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.calls)
			}
			if strings.Contains(err.Error(), secret) || strings.Contains(logs.String(), secret) {
				t.Error("token leaked into error or logs")
			}
		})
	}
}

func TestHTTPIndividualReportsFailedFiles(t *testing.T) {
	p := assembled(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/summary.json") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newHTTP(srv.URL, config.MethodIndividual, config.AuthBearer, &bytes.Buffer{}).Upload(context.Background(), p)
	if !errors.Is(err, errors.ErrCodeUpload) {
		t.Fatalf("Upload error = %v, want UPLOAD_FAILED", err)
	}
	if !strings.Contains(err.Error(), "summary.json") {
		t.Errorf("error should name the failed file: %v", err)
	}
}

type fakeStore struct {
	mu      sync.Mutex
	exists  bool
	made    bool
	objects map[string][]byte
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _, object string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[object] = data
	return minio.UploadInfo{Key: object, Size: int64(len(data))}, nil
}

func TestS3Upload(t *testing.T) {
	p := assembled(t)
	store := &fakeStore{objects: map[string][]byte{}}
	s := &S3{Bucket: "packs", Prefix: "ci", Logger: log.New(io.Discard), store: store}

	res, err := s.Upload(context.Background(), p)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !store.made {
		t.Error("missing bucket was not created")
	}
	if len(store.objects) != len(pack.Layout)+1 {
		t.Errorf("objects = %d, want %d", len(store.objects), len(pack.Layout)+1)
	}
	if _, ok := store.objects["ci/demo/abc1234567/summary.json"]; !ok {
		t.Errorf("summary.json not stored under prefix, keys %v", store.objects)
	}
	if res.PublishedURL != "s3://packs/ci/demo/abc1234567/" {
		t.Errorf("PublishedURL = %q", res.PublishedURL)
	}
}

type fakeCollection struct {
	filter any
	update any
	upsert bool
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.filter, f.update = filter, update
	for _, o := range opts {
		if o.Upsert != nil {
			f.upsert = *o.Upsert
		}
	}
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func TestMongoUpload(t *testing.T) {
	p := assembled(t)
	coll := &fakeCollection{}
	closed := false
	m := NewMongo(config.MongoConfig{Database: "evidence", Collection: "packs"}, "mongodb://user:"+secret+"@db", log.New(io.Discard))
	m.dial = func(context.Context) (collection, func(context.Context) error, error) {
		return coll, func(context.Context) error { closed = true; return nil }, nil
	}

	res, err := m.Upload(context.Background(), p)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !coll.upsert || !closed {
		t.Errorf("upsert = %v, closed = %v", coll.upsert, closed)
	}
	filter := coll.filter.(bson.D)
	if filter[0].Value != "demo@abc1234567" {
		t.Errorf("filter = %v", filter)
	}
	doc := coll.update.(bson.D)[0].Value.(bson.D)
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		t.Fatal(err)
	}
	var got IndexDocument
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.RunID != "run-1" || got.Digest != p.Manifest.Digest || len(got.Files) != len(pack.Layout) {
		t.Errorf("document = %+v", got)
	}
	if got.Summary.Repository.Name != "demo" {
		t.Errorf("summary repository = %+v", got.Summary.Repository)
	}
	if strings.Contains(res.PublishedURL, secret) {
		t.Error("connection string leaked into result")
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default(".")
	u, err := New(cfg, nil)
	if err != nil || u != nil {
		t.Errorf("New(no target) = %v, %v; want nil, nil", u, err)
	}

	cfg.Upload.Target = config.UploadHTTP
	cfg.Upload.URL = "https://example.com"
	u, err = New(cfg.WithCredential(config.CredUploadToken, secret), nil)
	if err != nil || u.Name() != config.UploadHTTP {
		t.Errorf("New(http) = %v, %v", u, err)
	}

	cfg.Upload.Target = "ftp"
	if _, err := New(cfg, nil); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("New(ftp) error = %v, want INVALID_CONFIG", err)
	}
}
