package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"zeex-stream/work/client"
	"zeex-stream/work/logger"
	"zeex-stream/work/metrics"
	"zeex-stream/work/ranges"
	"zeex-stream/work/registry"
	"zeex-stream/work/telegram"
	"zeex-stream/work/token"
	"zeex-stream/work/types"
	"zeex-stream/work/utils"
)

// ServeStream handles GET and HEAD requests for /stream/{token}. It resolves
// the token, asks the upstream for the file's location and size, plans the
// byte window from the client's Range header, and (for GET) proxies the
// ranged upstream body to the client in pooled chunks.
//
// Every error before the first body byte maps to a clean status code.
// Failures after streaming has begun can only terminate the body early; the
// player's own retry logic recovers from truncated transfers.
func (sp *StreamProxy) ServeStream(w http.ResponseWriter, r *http.Request, tok string, headOnly bool) {

	// structurally invalid tokens never reach the registry
	if !token.Valid(tok) {
		metrics.StreamErrors.WithLabelValues("invalid_token").Inc()
		http.Error(w, "Invalid stream token", http.StatusBadRequest)
		return
	}

	// acquire a streaming slot
	select {
	case sp.streamSemaphore <- struct{}{}:
		defer func() { <-sp.streamSemaphore }()
	default:
		logger.Warn("{proxy/stream - ServeStream} Max concurrent streams reached (%d), rejecting client %s", sp.Config.MaxConcurrentStreams, r.RemoteAddr)
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	fileID, err := sp.Registry.Resolve(tok)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			metrics.StreamErrors.WithLabelValues("not_found").Inc()
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		logger.Error("{proxy/stream - ServeStream} Registry lookup failed for %s: %v", tok, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	info, err := sp.Resolver.ResolveLocation(r.Context(), fileID)
	if err != nil {
		sp.writeResolveError(w, tok, err)
		return
	}

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-cache")
	if info.FileName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", info.FileName))
	}

	// Unknown total length: Content-Range math is impossible, so ignore any
	// Range header and serve an unranged full body.
	if info.Size <= 0 {
		logger.Debug("{proxy/stream - ServeStream} Unknown length for token %s..., serving unranged", tok[:8])
		if headOnly {
			w.WriteHeader(http.StatusOK)
			return
		}
		sp.streamBody(w, r, tok, info, ranges.Plan{Status: http.StatusOK, Start: 0, End: -1, Length: -1})
		return
	}

	plan := ranges.PlanRange(r.Header.Get("Range"), info.Size)

	if plan.Status == http.StatusRequestedRangeNotSatisfiable {
		metrics.StreamErrors.WithLabelValues("unsatisfiable").Inc()
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(plan.Length, 10))
	if plan.Status == http.StatusPartialContent {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", plan.Start, plan.End, info.Size))
	}

	if headOnly {
		w.WriteHeader(plan.Status)
		return
	}

	sp.streamBody(w, r, tok, info, plan)
}

// writeResolveError maps resolver failures onto client-facing status codes.
func (sp *StreamProxy) writeResolveError(w http.ResponseWriter, tok string, err error) {
	switch {
	case errors.Is(err, telegram.ErrNotFound):
		metrics.StreamErrors.WithLabelValues("not_found").Inc()
		http.Error(w, "Stream not found", http.StatusNotFound)
	case errors.Is(err, telegram.ErrUpstreamUnavailable):
		metrics.StreamErrors.WithLabelValues("upstream").Inc()
		logger.Warn("{proxy/stream - writeResolveError} Upstream unavailable for token %s...: %v", tok[:8], err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
	default:
		logger.Error("{proxy/stream - writeResolveError} Resolve failed for token %s...: %v", tok[:8], err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// streamBody issues the upstream fetch for the planned window and copies the
// body to the client in pooled chunks. The upstream request shares the client
// request's context, so a client disconnect aborts the upstream transfer
// immediately; an idle watchdog aborts transfers that stop moving bytes.
func (sp *StreamProxy) streamBody(w http.ResponseWriter, r *http.Request, tok string, info *types.FileInfo, plan ranges.Plan) {

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		logger.Error("{proxy/stream - streamBody} Failed to build upstream request: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if plan.Status == http.StatusPartialContent {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", plan.Start, plan.End))
	}

	resp, err := sp.HttpClient.Do(req)
	if err != nil {
		metrics.StreamErrors.WithLabelValues("upstream").Inc()
		logger.Warn("{proxy/stream - streamBody} Upstream fetch failed: %s - %v", utils.LogURL(sp.Config, info.DownloadURL), err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.StreamErrors.WithLabelValues("upstream").Inc()
		logger.Warn("{proxy/stream - streamBody} Upstream fetch returned %d: %s", resp.StatusCode, utils.LogURL(sp.Config, info.DownloadURL))
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}

	var src io.Reader = resp.Body

	// Some upstreams ignore Range and reply 200 with the whole file. The
	// planned headers are already correct, so recover the window by
	// discarding the lead-in and truncating at the window end.
	if plan.Status == http.StatusPartialContent && resp.StatusCode == http.StatusOK {
		logger.Debug("{proxy/stream - streamBody} Upstream ignored Range header, recovering window %d-%d", plan.Start, plan.End)
		if _, err := io.CopyN(io.Discard, resp.Body, plan.Start); err != nil {
			metrics.StreamErrors.WithLabelValues("upstream").Inc()
			http.Error(w, "Upstream unavailable", http.StatusBadGateway)
			return
		}
		src = io.LimitReader(resp.Body, plan.Length)
	} else if plan.Length > 0 {
		// Never send more than the announced Content-Length
		src = io.LimitReader(resp.Body, plan.Length)
	}

	// headers are final from here on
	w.WriteHeader(plan.Status)

	flusher := resolveFlusher(w)

	session := &types.Session{
		ID:         fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano()),
		Token:      tok,
		RemoteAddr: r.RemoteAddr,
		StartedAt:  time.Now(),
		Status:     plan.Status,
	}
	sp.Sessions.Store(session.ID, session)
	metrics.ActiveStreams.Inc()
	defer func() {
		sp.Sessions.Delete(session.ID)
		metrics.ActiveStreams.Dec()
	}()

	// watchdog cancels the upstream fetch when no bytes move for the idle
	// window; each delivered chunk pushes the deadline out again
	watchdog := time.AfterFunc(sp.Config.StreamIdleTimeout, cancel)
	defer watchdog.Stop()

	statusLabel := strconv.Itoa(plan.Status)

	buf := sp.BufferPool.Get()
	defer sp.BufferPool.Put(buf)
	chunk := buf.B[:sp.BufferPool.ChunkSize()]

	for {
		n, rerr := src.Read(chunk)
		if n > 0 {
			watchdog.Reset(sp.Config.StreamIdleTimeout)

			if _, werr := w.Write(chunk[:n]); werr != nil {
				// client is gone; context cancellation tears down upstream
				metrics.StreamErrors.WithLabelValues("disconnect").Inc()
				logger.Debug("{proxy/stream - streamBody} Client disconnected: %s (token: %s...)", session.ID, tok[:8])
				return
			}
			if flusher != nil {
				flusher.Flush()
			}

			session.BytesSent.Add(int64(n))
			metrics.BytesTransferred.WithLabelValues(statusLabel).Add(float64(n))
		}

		if rerr == io.EOF {
			logger.Debug("{proxy/stream - streamBody} Stream complete: %s (%s sent)", session.ID, utils.FormatBytes(session.BytesSent.Load()))
			return
		}
		if rerr != nil {
			if ctx.Err() != nil {
				metrics.StreamErrors.WithLabelValues("disconnect").Inc()
				logger.Debug("{proxy/stream - streamBody} Stream cancelled: %s - %v", session.ID, ctx.Err())
			} else {
				// upstream dropped mid-stream; the status is already on the
				// wire, so all we can do is end the body early
				metrics.StreamErrors.WithLabelValues("upstream").Inc()
				logger.Warn("{proxy/stream - streamBody} Upstream read failed mid-stream: %s - %v", session.ID, rerr)
			}
			return
		}
	}
}

// resolveFlusher unwraps the response writer to its http.Flusher, handling
// the CustomResponseWriter wrapper. Returns nil when the transport cannot
// flush; streaming still works, just with transport-level buffering.
func resolveFlusher(w http.ResponseWriter) http.Flusher {
	if crw, ok := w.(*client.CustomResponseWriter); ok {
		if flusher, ok := crw.ResponseWriter.(http.Flusher); ok {
			return flusher
		}
		return nil
	}
	if flusher, ok := w.(http.Flusher); ok {
		return flusher
	}
	return nil
}
