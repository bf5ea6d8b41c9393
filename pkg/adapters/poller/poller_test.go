package poller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/switchyard/pkg/adapters/poller"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

var fixed = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newPoller(opts ...poller.Option) *poller.Poller {
	all := append([]poller.Option{poller.WithClock(ports.ClockFunc(func() time.Time { return fixed }))}, opts...)
	return poller.New(all...)
}

func TestPoll_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"items":[1,2]}`))
	}))
	defer srv.Close()

	res := newPoller().Poll(context.Background(), domain.PollingConfig{
		EndpointID: "api",
		URL:        srv.URL,
		Headers:    map[string]string{"X-Api-Key": "secret"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, `{"items":[1,2]}`, string(res.Content))
	assert.Equal(t, fixed, res.PolledAt)
	assert.Equal(t, http.StatusOK, res.Metadata[poller.MetaStatusCode])
	assert.Equal(t, "application/json", res.Metadata[poller.MetaContentType])
	assert.Equal(t, `"v1"`, res.Metadata[poller.MetaETag])
	assert.Equal(t, int64(15), res.Metadata[poller.MetaContentLength])
	assert.Empty(t, res.ContentHash, "hashing is the detector's job")
}

func TestPoll_HTTPMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Method))
	}))
	defer srv.Close()

	res := newPoller().Poll(context.Background(), domain.PollingConfig{URL: srv.URL, Method: "post"})
	require.True(t, res.Success)
	assert.Equal(t, "POST", string(res.Content))
}

func TestPoll_NonSuccessStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	res := newPoller().Poll(context.Background(), domain.PollingConfig{URL: srv.URL})
	assert.False(t, res.Success)
	assert.Nil(t, res.Content)
	assert.Contains(t, res.Error, "404")
	assert.Equal(t, http.StatusNotFound, res.Metadata[poller.MetaStatusCode])
}

func TestPoll_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := newPoller().Poll(context.Background(), domain.PollingConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestPoll_ContentTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	res := newPoller(poller.WithMaxContentBytes(4)).Poll(context.Background(), domain.PollingConfig{URL: srv.URL})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "exceeds")
}

func TestPoll_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	for _, url := range []string{path, "file://" + filepath.ToSlash(path)} {
		res := newPoller().Poll(context.Background(), domain.PollingConfig{EndpointID: "local", URL: url})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "hello", string(res.Content))
		assert.Equal(t, int64(5), res.Metadata[poller.MetaContentLength])
	}

	res := newPoller().Poll(context.Background(), domain.PollingConfig{URL: filepath.Join(t.TempDir(), "missing")})
	assert.False(t, res.Success)
}

func TestPoll_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := newPoller()
	cfg := domain.PollingConfig{EndpointID: "limited", URL: srv.URL, RateLimit: 0.5}

	require.True(t, p.Poll(context.Background(), cfg).Success)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := p.Poll(ctx, cfg)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rate limit")

	other := cfg
	other.EndpointID = "other"
	assert.True(t, p.Poll(context.Background(), other).Success, "limiters are per endpoint")
}

func TestResolveProtocol(t *testing.T) {
	tests := []struct {
		cfg     domain.PollingConfig
		want    domain.Protocol
		wantErr bool
	}{
		{cfg: domain.PollingConfig{URL: "http://x"}, want: domain.ProtocolHTTP},
		{cfg: domain.PollingConfig{URL: "HTTPS://x"}, want: domain.ProtocolHTTPS},
		{cfg: domain.PollingConfig{URL: "/var/feed"}, want: domain.ProtocolFile},
		{cfg: domain.PollingConfig{URL: "file:///var/feed"}, want: domain.ProtocolFile},
		{cfg: domain.PollingConfig{URL: "http://x", Protocol: domain.ProtocolFile}, want: domain.ProtocolFile},
		{cfg: domain.PollingConfig{URL: "ftp://x"}, wantErr: true},
		{cfg: domain.PollingConfig{URL: "x", Protocol: "gopher"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := poller.ResolveProtocol(tt.cfg)
		if tt.wantErr {
			assert.Error(t, err, tt.cfg.URL)
			continue
		}
		require.NoError(t, err, tt.cfg.URL)
		assert.Equal(t, tt.want, got)
	}
}

func TestPoll_UnsupportedSchemeIsFailure(t *testing.T) {
	res := newPoller().Poll(context.Background(), domain.PollingConfig{URL: "ftp://example.com/feed"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ftp")
}
