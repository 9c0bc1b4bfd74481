package types

import (
	"sync/atomic"
	"time"
)

// FileInfo describes a resolved upstream file: where its bytes can be fetched
// from and what headers to report to the client. The download URL embeds the
// bot token and expires upstream, so FileInfo is ephemeral and re-resolved on
// every client request rather than persisted.
type FileInfo struct {
	FileID      string // Provider file id the info was resolved for
	DownloadURL string // Time-limited direct download location on the file CDN
	Size        int64  // Total byte size; 0 when the upstream did not report one
	MimeType    string // Content type to report, derived from the file path
	FileName    string // Base name of the upstream file path, for Content-Disposition
}

// Session tracks one active streaming client for the admin status surface.
// BytesSent is written from the streaming goroutine and read concurrently by
// status requests, so it is atomic; the remaining fields are set once at
// session start.
type Session struct {
	ID         string       // Unique session identifier (remote addr + nanotime)
	Token      string       // Public stream token being served
	RemoteAddr string       // Client network address
	StartedAt  time.Time    // When streaming began
	Status     int          // HTTP status the response was started with (200/206)
	BytesSent  atomic.Int64 // Bytes written to the client so far
}
