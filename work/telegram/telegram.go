package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/ratelimit"

	"zeex-stream/work/client"
	"zeex-stream/work/config"
	"zeex-stream/work/logger"
	"zeex-stream/work/metrics"
	"zeex-stream/work/types"
)

var (
	// ErrNotFound means the upstream no longer knows the file (expired or
	// revoked file id). Surfaced to clients as 404.
	ErrNotFound = errors.New("upstream file not found")

	// ErrUpstreamUnavailable covers timeouts, network errors and upstream
	// 5xx responses. Surfaced as 502 after the single internal retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Resolver translates Telegram file ids into time-limited download locations
// via the Bot API getFile method. Download URLs expire upstream, so results
// are never cached; every client request resolves fresh.
type Resolver struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	limiter    ratelimit.Limiter
}

// getFileResponse is the Bot API envelope for the getFile method.
type getFileResponse struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		FileID       string `json:"file_id"`
		FileUniqueID string `json:"file_unique_id"`
		FileSize     int64  `json:"file_size"`
		FilePath     string `json:"file_path"`
	} `json:"result"`
}

// NewResolver creates a Resolver sharing the application's pooled HTTP
// client, with a rate limiter sized to stay under the Bot API quota.
func NewResolver(cfg *config.Config, httpClient *client.HeaderSettingClient) *Resolver {
	return &Resolver{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    ratelimit.New(cfg.UpstreamRateLimit),
	}
}

// ResolveLocation resolves a file id to its download location, total size and
// mime type. Transient upstream failures are retried exactly once after a
// short backoff, because fresh file handles can be momentarily unready.
func (rs *Resolver) ResolveLocation(ctx context.Context, fileID string) (*types.FileInfo, error) {
	info, err := rs.getFile(ctx, fileID)
	if err == nil || !errors.Is(err, ErrUpstreamUnavailable) {
		return info, err
	}

	logger.Debug("{telegram - ResolveLocation} Transient failure for file %s, retrying after %s", obfuscateFileID(fileID), rs.cfg.RetryBackoff)
	metrics.UpstreamRetries.Inc()

	select {
	case <-time.After(rs.cfg.RetryBackoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
	}

	return rs.getFile(ctx, fileID)
}

// getFile performs one Bot API getFile call and classifies the outcome.
func (rs *Resolver) getFile(ctx context.Context, fileID string) (*types.FileInfo, error) {
	rs.limiter.Take()

	ctx, cancel := context.WithTimeout(ctx, rs.cfg.ResolveTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s",
		rs.cfg.BotAPIBase, rs.cfg.BotToken, url.QueryEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build getFile request: %w", err)
	}

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: getFile returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var parsed getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid getFile response: %v", ErrUpstreamUnavailable, err)
	}

	// The Bot API reports invalid/expired file ids as 4xx with ok=false
	if !parsed.Ok || resp.StatusCode >= 400 {
		logger.Debug("{telegram - getFile} File not found upstream: %s (%d %s)", obfuscateFileID(fileID), parsed.ErrorCode, parsed.Description)
		return nil, ErrNotFound
	}

	if parsed.Result.FilePath == "" {
		return nil, ErrNotFound
	}

	info := &types.FileInfo{
		FileID:      fileID,
		DownloadURL: fmt.Sprintf("%s/file/bot%s/%s", rs.cfg.BotAPIBase, rs.cfg.BotToken, parsed.Result.FilePath),
		Size:        parsed.Result.FileSize,
		MimeType:    mimeTypeForPath(parsed.Result.FilePath),
		FileName:    path.Base(parsed.Result.FilePath),
	}

	return info, nil
}

// mimeTypeForPath derives a content type from the upstream file path.
// Telegram's getFile does not report a mime type, but file paths carry the
// original extension.
func mimeTypeForPath(filePath string) string {
	if mt := mime.TypeByExtension(path.Ext(filePath)); mt != "" {
		return mt
	}
	return "video/mp4"
}

// obfuscateFileID shortens file ids for logging; they are opaque but long.
func obfuscateFileID(fileID string) string {
	if len(fileID) <= 12 {
		return fileID
	}
	return fileID[:12] + "..."
}
