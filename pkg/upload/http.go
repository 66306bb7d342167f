package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/buildinfo"
	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/observability"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

const (
	defaultCustomHeader = "X-API-Key"
	httpTimeout         = 5 * time.Minute
	maxResponseBody     = 1 << 20
)

// HTTP uploads packs to a compliance endpoint under
// {base}/evidence/{repo}/{commit}.
type HTTP struct {
	BaseURL      string
	Method       string
	AuthType     string
	CustomHeader string
	Client       *http.Client
	Retry        cache.RetryPolicy
	Logger       *log.Logger

	token string
}

// NewHTTP creates an HTTP uploader. An empty token sends no credentials.
func NewHTTP(cfg config.UploadConfig, token string, logger *log.Logger) *HTTP {
	return &HTTP{
		BaseURL:      strings.TrimRight(cfg.URL, "/"),
		Method:       cfg.Method,
		AuthType:     cfg.AuthType,
		CustomHeader: cfg.CustomHeader,
		Client:       &http.Client{Timeout: httpTimeout},
		Retry:        cache.DefaultRetryPolicy,
		Logger:       logger,
		token:        token,
	}
}

// Name implements Uploader.
func (h *HTTP) Name() string { return config.UploadHTTP }

// Upload implements Uploader.
func (h *HTTP) Upload(ctx context.Context, p Pack) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := errors.ValidateURL(h.BaseURL); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "upload url")
	}
	if h.Method == config.MethodIndividual {
		return h.uploadFiles(ctx, p)
	}
	return h.uploadZip(ctx, p)
}

func (h *HTTP) endpoint(p Pack) string {
	return h.BaseURL + "/evidence/" + url.PathEscape(p.Repo) + "/" + url.PathEscape(p.Commit)
}

func (h *HTTP) uploadZip(ctx context.Context, p Pack) (*Result, error) {
	var archive bytes.Buffer
	if err := pack.Archive(p.Dir, &archive); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "archive pack")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"repo_name", p.Repo},
		{"commit_sha", p.Commit},
		{"uploaded_at", p.Build.BuildTime},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeUpload, err, "encode form")
		}
	}
	name := fmt.Sprintf("evidence-%s-%s.zip", p.Repo, shortCommit(p.Commit))
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "encode form")
	}
	if _, err := fw.Write(archive.Bytes()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "encode form")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "encode form")
	}

	endpoint := h.endpoint(p)
	resp, err := h.send(ctx, http.MethodPost, endpoint, mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "upload %s", name)
	}
	res := &Result{
		Target:       config.UploadHTTP,
		Method:       config.MethodZip,
		PublishedURL: publishedURL(resp, endpoint),
		Files:        len(p.files()),
		Bytes:        int64(archive.Len()),
	}
	h.logger().Info("uploaded pack", "method", res.Method, "bytes", res.Bytes, "url", res.PublishedURL)
	return res, nil
}

func (h *HTTP) uploadFiles(ctx context.Context, p Pack) (*Result, error) {
	endpoint := h.endpoint(p)
	res := &Result{Target: config.UploadHTTP, Method: config.MethodIndividual, PublishedURL: errors.RedactURL(endpoint)}

	var failed []string
	for _, rel := range p.files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.read(rel)
		if err != nil {
			return nil, err
		}
		if _, err := h.send(ctx, http.MethodPut, endpoint+"/"+escapePath(rel), contentType(rel), data); err != nil {
			h.logger().Warn("file upload failed", "file", rel, "err", err)
			failed = append(failed, rel)
			continue
		}
		res.Files++
		res.Bytes += int64(len(data))
	}
	if len(failed) > 0 {
		return nil, errors.New(errors.ErrCodeUpload, "%d of %d files failed to upload: %s",
			len(failed), len(failed)+res.Files, strings.Join(failed, ", "))
	}
	h.logger().Info("uploaded pack", "method", res.Method, "files", res.Files, "url", res.PublishedURL)
	return res, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send issues one request with retries. 5xx and 429 responses and
// transport failures are retried.
func (h *HTTP) send(ctx context.Context, method, target, contentType string, body []byte) (*response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	hooks := observability.HTTP()

	var out *response
	err = cache.RetryWithPolicy(ctx, h.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("User-Agent", buildinfo.UserAgent())
		h.authorize(req)

		hooks.OnRequest(ctx, method, u.Host, u.Path)
		start := time.Now()
		resp, err := h.client().Do(req)
		if err != nil {
			hooks.OnError(ctx, method, u.Host, u.Path, err)
			return cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		hooks.OnResponse(ctx, method, u.Host, u.Path, resp.StatusCode, time.Since(start))

		if err := checkStatus(resp.StatusCode); err != nil {
			return err
		}
		out = &response{status: resp.StatusCode, header: resp.Header, body: data}
		return nil
	})
	return out, err
}

func (h *HTTP) authorize(req *http.Request) {
	if h.token == "" {
		return
	}
	switch h.AuthType {
	case config.AuthSAS:
		req.Header.Set("Authorization", "SharedAccessSignature "+h.token)
	case config.AuthCustom:
		name := h.CustomHeader
		if name == "" {
			name = defaultCustomHeader
		}
		req.Header.Set(name, h.token)
	default:
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests, code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return errors.New(errors.ErrCodeUnauthorized, "endpoint rejected credentials (status %d)", code)
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

// publishedURL prefers a URL reported by the endpoint, either in a JSON body
// or a Location header, over the upload endpoint itself.
func publishedURL(resp *response, endpoint string) string {
	if strings.HasPrefix(resp.header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if json.Unmarshal(resp.body, &body) == nil {
			for _, key := range []string{"url", "published_url", "location"} {
				if s, ok := body[key].(string); ok && s != "" {
					return errors.RedactURL(s)
				}
			}
		}
	}
	if loc := resp.header.Get("Location"); loc != "" {
		return errors.RedactURL(loc)
	}
	return errors.RedactURL(endpoint)
}

func escapePath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func shortCommit(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
