// Package server serves an assembled evidence pack over HTTP for review.
//
// Only files listed in the pack's SHA256SUMS are reachable. Verification
// verdicts are cached per manifest digest, so repeated requests against an
// unchanged pack do not rehash every file.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/observability"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

const requestTimeout = 60 * time.Second

// Server serves one pack directory.
type Server struct {
	Dir    string
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// New creates a server for the pack in dir. A nil cache disables verdict
// caching.
func New(dir string, c cache.Cache, logger *log.Logger) *Server {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{Dir: dir, Cache: c, Keyer: cache.NewDefaultKeyer(), Logger: logger}
}

// VerifyResponse is the body of GET /api/verify.
type VerifyResponse struct {
	OK     bool         `json:"ok"`
	Cached bool         `json:"cached"`
	Report *pack.Report `json:"report"`
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/files", s.handleFiles)
		r.Get("/verify", s.handleVerify)
	})
	r.Get("/files/*", s.handleFile)
	r.Get("/archive.zip", s.handleArchive)
	return r
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.serveListed(w, r, pack.FileSummary)
}

func (s *Server) handleFiles(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.manifest()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.serveListed(w, r, chi.URLParam(r, "*"))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sums, err := os.ReadFile(filepath.Join(s.Dir, pack.FileChecksums))
	if err != nil {
		s.fail(w, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", pack.FileChecksums))
		return
	}
	key := s.Keyer.VerifyKey(cache.Hash(sums))

	if data, hit, err := s.Cache.Get(ctx, key); err == nil && hit {
		var resp VerifyResponse
		if json.Unmarshal(data, &resp) == nil {
			observability.Cache().OnCacheHit(ctx, "verify")
			resp.Cached = true
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	observability.Cache().OnCacheMiss(ctx, "verify")

	report, err := pack.Verify(s.Dir)
	if err != nil && !errors.Is(err, errors.ErrCodeIntegrity) {
		s.fail(w, err)
		return
	}
	resp := VerifyResponse{OK: report.OK(), Report: report}
	// Only clean verdicts are cached.
	if resp.OK {
		if data, err := json.Marshal(resp); err == nil {
			if s.Cache.Set(ctx, key, data, cache.TTLVerify) == nil {
				observability.Cache().OnCacheSet(ctx, "verify", len(data))
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if _, err := s.manifest(); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="evidence-pack.zip"`)
	if err := pack.Archive(s.Dir, w); err != nil {
		s.Logger.Error("archive failed", "err", err)
	}
}

// serveListed serves rel if SHA256SUMS lists it.
func (s *Server) serveListed(w http.ResponseWriter, r *http.Request, rel string) {
	if err := errors.ValidatePath(rel); err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	entries, err := s.manifest()
	if err != nil {
		s.fail(w, err)
		return
	}
	listed := rel == pack.FileChecksums || slices.ContainsFunc(entries, func(e pack.Entry) bool { return e.Path == rel })
	if !listed {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType(rel))
	http.ServeFile(w, r, filepath.Join(s.Dir, filepath.FromSlash(rel)))
}

func (s *Server) manifest() ([]pack.Entry, error) {
	sums, err := os.ReadFile(filepath.Join(s.Dir, pack.FileChecksums))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", pack.FileChecksums)
	}
	return pack.ParseChecksums(sums)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errors.ErrCodeInvalidPack) {
		status = http.StatusConflict
	}
	s.Logger.Warn("request failed", "err", err)
	writeJSON(w, status, map[string]string{
		"code":  string(errors.GetCode(err)),
		"error": errors.UserMessage(err),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func contentType(rel string) string {
	switch filepath.Ext(rel) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
