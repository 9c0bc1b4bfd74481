package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"zeex-stream/work/buffer"
	"zeex-stream/work/client"
	"zeex-stream/work/config"
	"zeex-stream/work/logger"
	"zeex-stream/work/registry"
	"zeex-stream/work/types"
)

// FileResolver resolves a provider file id to a time-limited download
// location. Satisfied by telegram.Resolver; tests substitute doubles to
// count upstream calls.
type FileResolver interface {
	ResolveLocation(ctx context.Context, fileID string) (*types.FileInfo, error)
}

// StreamProxy is the core application orchestrator. It wires the token
// registry, upstream resolver and streaming transport together and tracks
// the set of in-flight streaming sessions.
//
// All fields are shared immutable dependencies; per-request state lives on
// the request goroutine. Nothing on the streaming path takes a lock beyond
// the session map's internal sharding.
type StreamProxy struct {
	Config     *config.Config                       // application configuration
	Registry   *registry.Registry                   // token -> provider file id mapping
	Resolver   FileResolver                         // upstream getFile resolution
	HttpClient *client.HeaderSettingClient          // pooled upstream HTTP client
	BufferPool *buffer.BufferPool                   // pooled copy chunks for streaming
	WorkerPool *ants.Pool                           // bounded pool for background warmups
	Sessions   *xsync.MapOf[string, *types.Session] // active streaming sessions keyed by session id

	streamSemaphore chan struct{} // bounds concurrent streaming clients
	maintStopChan   chan bool     // stops the maintenance loop
}

// New creates and initializes a StreamProxy with all required dependencies.
func New(cfg *config.Config, reg *registry.Registry, resolver FileResolver, httpClient *client.HeaderSettingClient, bufferPool *buffer.BufferPool, workerPool *ants.Pool) *StreamProxy {
	logger.Debug("{proxy/proxy - New} Initializing new StreamProxy instance")

	return &StreamProxy{
		Config:          cfg,
		Registry:        reg,
		Resolver:        resolver,
		HttpClient:      httpClient,
		BufferPool:      bufferPool,
		WorkerPool:      workerPool,
		Sessions:        xsync.NewMapOf[string, *types.Session](),
		streamSemaphore: make(chan struct{}, cfg.MaxConcurrentStreams),
		maintStopChan:   make(chan bool, 1),
	}
}

// GetOrCreateStreamLink registers a provider file id with the token registry
// and returns the public stream URL. Repeat calls for the same file id return
// the same link. The upstream file handle is warmed in the background, since
// getFile can be transiently unready right after an upload.
func (sp *StreamProxy) GetOrCreateStreamLink(fileID string) (string, string, error) {
	tok, err := sp.Registry.GetOrCreate(fileID)
	if err != nil {
		return "", "", err
	}

	streamURL := fmt.Sprintf("%s/stream/%s", sp.Config.BaseURL, tok)

	if sp.WorkerPool != nil {
		if err := sp.WorkerPool.Submit(func() { sp.warmFileHandle(fileID) }); err != nil {
			// warmup is best effort; the first client just pays the retry
			logger.Debug("{proxy/proxy - GetOrCreateStreamLink} Warmup submit failed: %v", err)
		}
	}

	return tok, streamURL, nil
}

// warmFileHandle resolves a freshly registered file once so the upstream
// handle is ready before the first real client arrives.
func (sp *StreamProxy) warmFileHandle(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sp.Config.ResolveTimeout)
	defer cancel()

	if _, err := sp.Resolver.ResolveLocation(ctx, fileID); err != nil {
		logger.Debug("{proxy/proxy - warmFileHandle} Warmup resolve failed: %v", err)
	}
}

// ActiveSessions snapshots the current streaming sessions for the admin API.
func (sp *StreamProxy) ActiveSessions() []*types.Session {
	sessions := make([]*types.Session, 0, 16)
	sp.Sessions.Range(func(_ string, s *types.Session) bool {
		sessions = append(sessions, s)
		return true
	})
	return sessions
}

// StartMaintenance runs periodic housekeeping: buffer pool cleanup and an
// activity log line. Blocking loop, launch in its own goroutine.
func (sp *StreamProxy) StartMaintenance() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-sp.maintStopChan:
			logger.Debug("{proxy/proxy - StartMaintenance} Maintenance loop stopped")
			return
		case <-ticker.C:
			count := 0
			sp.Sessions.Range(func(_ string, _ *types.Session) bool {
				count++
				return true
			})
			logger.Debug("{proxy/proxy - StartMaintenance} Active sessions: %d", count)

			if sp.BufferPool != nil {
				sp.BufferPool.Cleanup()
			}
		}
	}
}

// StopMaintenance signals the maintenance loop to terminate. Non-blocking
// even if the loop already stopped.
func (sp *StreamProxy) StopMaintenance() {
	select {
	case sp.maintStopChan <- true:
	default:
	}
}
