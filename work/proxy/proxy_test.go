package proxy_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeex-stream/work/buffer"
	"zeex-stream/work/client"
	"zeex-stream/work/config"
	"zeex-stream/work/database"
	"zeex-stream/work/handlers"
	"zeex-stream/work/proxy"
	"zeex-stream/work/registry"
	"zeex-stream/work/telegram"
	"zeex-stream/work/types"
)

const testFileID = "BAACAgQAAxkBAAIBOWXs"

// testBlob is a deterministic 5000-byte payload so window tests can compare
// exact byte content, not just lengths.
func testBlob() []byte {
	blob := make([]byte, 5000)
	for i := range blob {
		blob[i] = byte(i % 251)
	}
	return blob
}

// stubResolver satisfies proxy.FileResolver and counts upstream calls.
type stubResolver struct {
	calls atomic.Int64
	info  *types.FileInfo
	err   error
}

func (s *stubResolver) ResolveLocation(ctx context.Context, fileID string) (*types.FileInfo, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	info.FileID = fileID
	return &info, nil
}

type testEnv struct {
	server   *httptest.Server
	resolver *stubResolver
	proxy    *proxy.StreamProxy
	token    string
}

// newTestEnv stands up a content server, a registered token and the full
// routing stack in front of ServeStream.
func newTestEnv(t *testing.T, upstream http.Handler, size int64) *testEnv {
	t.Helper()

	cdn := httptest.NewServer(upstream)
	t.Cleanup(cdn.Close)

	cfg := &config.Config{
		BaseURL:              "http://localhost:8080",
		ChunkSizeKB:          64,
		StreamIdleTimeout:    5 * time.Second,
		ResolveTimeout:       5 * time.Second,
		MaxConcurrentStreams: 4,
		UserAgent:            "zeex-stream/test",
	}

	db, err := database.Open(filepath.Join(t.TempDir(), "proxy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := registry.New(db, nil)
	tok, err := reg.GetOrCreate(testFileID)
	require.NoError(t, err)

	resolver := &stubResolver{
		info: &types.FileInfo{
			DownloadURL: cdn.URL + "/clip.mp4",
			Size:        size,
			MimeType:    "video/mp4",
			FileName:    "clip.mp4",
		},
	}

	sp := proxy.New(cfg, reg, resolver, client.NewHeaderSettingClient(cfg), buffer.NewBufferPool(cfg.ChunkSizeKB*1024), nil)

	router := mux.NewRouter()
	router.HandleFunc("/stream/{token}", handlers.HandleStream(sp)).Methods("GET")
	router.HandleFunc("/stream/{token}", handlers.HandleStreamHead(sp)).Methods("HEAD")

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, resolver: resolver, proxy: sp, token: tok}
}

// rangedCDN serves the blob with proper Range support.
func rangedCDN(blob []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "clip.mp4", time.Unix(0, 0), bytes.NewReader(blob))
	})
}

func (env *testEnv) get(t *testing.T, rangeHeader string) *http.Response {
	t.Helper()
	return env.request(t, http.MethodGet, rangeHeader)
}

func (env *testEnv) request(t *testing.T, method, rangeHeader string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+"/stream/"+env.token, nil)
	require.NoError(t, err)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStreamFullContent(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), int64(len(blob)))

	resp := env.get(t, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "5000", resp.Header.Get("Content-Length"))
	assert.Equal(t, `inline; filename="clip.mp4"`, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, blob, body)
}

func TestStreamPartialContent(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), int64(len(blob)))

	resp := env.get(t, "bytes=1000-1999")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "1000", resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes 1000-1999/5000", resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, blob[1000:2000], body)
}

func TestStreamOpenEndedRange(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), int64(len(blob)))

	resp := env.get(t, "bytes=4900-")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 4900-4999/5000", resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, blob[4900:], body)
}

func TestStreamUnsatisfiableRange(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), int64(len(blob)))

	resp := env.get(t, "bytes=5000-5100")

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, "bytes */5000", resp.Header.Get("Content-Range"))
}

func TestStreamHeadMatchesGet(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), int64(len(blob)))

	getResp := env.request(t, http.MethodGet, "bytes=0-99")
	io.Copy(io.Discard, getResp.Body)
	headResp := env.request(t, http.MethodHead, "bytes=0-99")

	assert.Equal(t, getResp.StatusCode, headResp.StatusCode)
	for _, h := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Content-Disposition"} {
		assert.Equal(t, getResp.Header.Get(h), headResp.Header.Get(h), "header %s", h)
	}

	body, err := io.ReadAll(headResp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestStreamInvalidToken(t *testing.T) {
	env := newTestEnv(t, rangedCDN(testBlob()), 5000)

	resp, err := http.Get(env.server.URL + "/stream/not-a-valid-token")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int64(0), env.resolver.calls.Load(), "invalid tokens never reach the resolver")
}

func TestStreamUnknownToken(t *testing.T) {
	env := newTestEnv(t, rangedCDN(testBlob()), 5000)

	resp, err := http.Get(env.server.URL + "/stream/0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int64(0), env.resolver.calls.Load(), "unregistered tokens never reach the resolver")
}

func TestStreamResolverNotFound(t *testing.T) {
	env := newTestEnv(t, rangedCDN(testBlob()), 5000)
	env.resolver.err = telegram.ErrNotFound

	resp := env.get(t, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamResolverUnavailable(t *testing.T) {
	env := newTestEnv(t, rangedCDN(testBlob()), 5000)
	env.resolver.err = telegram.ErrUpstreamUnavailable

	resp := env.get(t, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStreamRecoversWindowWhenUpstreamIgnoresRange(t *testing.T) {
	blob := testBlob()
	// upstream that always replies 200 with the whole file
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(blob)
	}), int64(len(blob)))

	resp := env.get(t, "bytes=1000-1999")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "1000", resp.Header.Get("Content-Length"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, blob[1000:2000], body)
}

func TestStreamUpstreamFetchError(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), 5000)

	resp := env.get(t, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStreamUnknownLengthServesUnranged(t *testing.T) {
	blob := testBlob()
	env := newTestEnv(t, rangedCDN(blob), 0)

	// Range must be ignored when the total length is unknown
	resp := env.get(t, "bytes=1000-1999")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, blob, body)
}

func TestStreamClientDisconnectAbortsUpstream(t *testing.T) {
	upstreamDone := make(chan struct{})
	firstChunk := make(chan struct{})

	// upstream that sends a first chunk, then holds the connection open until
	// its request context is cancelled
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(make([]byte, 1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(firstChunk)
		<-r.Context().Done()
		close(upstreamDone)
	}), 5000)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/stream/"+env.token, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	<-firstChunk
	cancel()

	select {
	case <-upstreamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection not torn down after client disconnect")
	}
}

func TestGetOrCreateStreamLink(t *testing.T) {
	env := newTestEnv(t, rangedCDN(testBlob()), 5000)

	tok, streamURL, err := env.proxy.GetOrCreateStreamLink(testFileID)
	require.NoError(t, err)
	assert.Equal(t, env.token, tok)
	assert.Equal(t, "http://localhost:8080/stream/"+tok, streamURL)

	// same file id, same link
	tok2, streamURL2, err := env.proxy.GetOrCreateStreamLink(testFileID)
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)
	assert.Equal(t, streamURL, streamURL2)
}
