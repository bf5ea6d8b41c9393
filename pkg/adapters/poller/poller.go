// Package poller implements ports.Poller for HTTP(S) endpoints and local files.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

const (
	// DefaultTimeout applies to endpoints configured without a timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxContentBytes bounds the content read from one poll.
	DefaultMaxContentBytes int64 = 10 << 20
)

// Metadata keys reported on every successful poll.
const (
	MetaStatusCode    = "status_code"
	MetaContentType   = "content_type"
	MetaETag          = "etag"
	MetaLastModified  = "last_modified"
	MetaContentLength = "content_length"
)

// Poller fetches endpoint content. It never returns an error: every failure
// is reported through PollingResult.Success and Error.
type Poller struct {
	client   *http.Client
	clock    ports.Clock
	logger   *slog.Logger
	maxBytes int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures the Poller.
type Option func(*Poller)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) {
		if c != nil {
			p.client = c
		}
	}
}

// WithClock sets the clock stamping PolledAt.
func WithClock(c ports.Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxContentBytes bounds the content size; larger responses fail the poll.
func WithMaxContentBytes(n int64) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// New creates a Poller.
func New(opts ...Option) *Poller {
	p := &Poller{
		client:   &http.Client{},
		clock:    ports.SystemClock{},
		logger:   logging.NewNop(),
		maxBytes: DefaultMaxContentBytes,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll implements ports.Poller.
func (p *Poller) Poll(ctx context.Context, cfg domain.PollingConfig) domain.PollingResult {
	if err := p.wait(ctx, cfg); err != nil {
		return p.failure(cfg, nil, fmt.Errorf("rate limit: %w", err))
	}

	protocol, err := ResolveProtocol(cfg)
	if err != nil {
		return p.failure(cfg, nil, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		content []byte
		meta    map[string]any
	)
	switch protocol {
	case domain.ProtocolFile:
		content, meta, err = p.readFile(cfg.URL)
	default:
		content, meta, err = p.fetch(ctx, cfg)
	}
	if err != nil {
		return p.failure(cfg, meta, err)
	}

	return domain.PollingResult{
		Success:  true,
		Content:  content,
		Metadata: meta,
		PolledAt: p.clock.Now(),
	}
}

// ResolveProtocol returns cfg.Protocol, or infers it from the URL scheme.
// A URL without a scheme is a file path.
func ResolveProtocol(cfg domain.PollingConfig) (domain.Protocol, error) {
	if cfg.Protocol != "" {
		switch cfg.Protocol {
		case domain.ProtocolHTTP, domain.ProtocolHTTPS, domain.ProtocolFile:
			return cfg.Protocol, nil
		}
		return "", fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", cfg.URL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return domain.ProtocolHTTP, nil
	case "https":
		return domain.ProtocolHTTPS, nil
	case "file", "":
		return domain.ProtocolFile, nil
	}
	return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
}

func (p *Poller) wait(ctx context.Context, cfg domain.PollingConfig) error {
	if cfg.RateLimit <= 0 {
		return nil
	}
	p.mu.Lock()
	lim, ok := p.limiters[cfg.EndpointID]
	if !ok || lim.Limit() != rate.Limit(cfg.RateLimit) {
		lim = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
		p.limiters[cfg.EndpointID] = lim
	}
	p.mu.Unlock()
	return lim.Wait(ctx)
}

func (p *Poller) fetch(ctx context.Context, cfg domain.PollingConfig) ([]byte, map[string]any, error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), cfg.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	meta := map[string]any{
		MetaStatusCode:    resp.StatusCode,
		MetaContentType:   resp.Header.Get("Content-Type"),
		MetaETag:          resp.Header.Get("ETag"),
		MetaLastModified:  resp.Header.Get("Last-Modified"),
		MetaContentLength: resp.ContentLength,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBytes))
		return nil, meta, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := p.readAll(resp.Body)
	if err != nil {
		return nil, meta, err
	}
	if resp.ContentLength < 0 {
		meta[MetaContentLength] = int64(len(body))
	}
	return body, meta, nil
}

func (p *Poller) readFile(raw string) ([]byte, map[string]any, error) {
	path, err := filePath(raw)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	body, err := p.readAll(f)
	if err != nil {
		return nil, nil, err
	}
	return body, map[string]any{
		MetaContentLength: int64(len(body)),
		MetaLastModified:  info.ModTime().UTC().Format(http.TimeFormat),
		"path":            path,
	}, nil
}

func (p *Poller) readAll(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, fmt.Errorf("content exceeds %s bytes", strconv.FormatInt(p.maxBytes, 10))
	}
	return body, nil
}

// filePath accepts file:///abs, file://host-relative and bare paths.
func filePath(raw string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(raw), "file:") {
		if raw == "" {
			return "", errors.New("empty file path")
		}
		return filepath.Clean(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid file url %q: %w", raw, err)
	}
	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	if u.Host != "" && u.Host != "localhost" {
		path = u.Host + path
	}
	if path == "" {
		return "", fmt.Errorf("file url %q has no path", raw)
	}
	return filepath.FromSlash(path), nil
}

// failure keeps whatever metadata was gathered, e.g. the status code of a
// non-2xx response.
func (p *Poller) failure(cfg domain.PollingConfig, meta map[string]any, err error) domain.PollingResult {
	p.logger.Warn("poll failed", "endpoint_id", cfg.EndpointID, "url", cfg.URL, "err", err)
	return domain.PollingResult{
		Success:  false,
		Metadata: meta,
		PolledAt: p.clock.Now(),
		Error:    err.Error(),
	}
}
