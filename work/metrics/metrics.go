package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ActiveStreams tracks the number of streaming responses currently in flight.
// This metric is a gauge, going up when a stream starts and down when the
// client disconnects or the transfer completes.
var ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "zeex_stream_active_streams",
	Help: "Number of active streaming responses",
})

// BytesTransferred tracks total bytes proxied to clients. The "status" label
// distinguishes full (200) from partial (206) transfers. Counter, only increases.
var BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zeex_stream_bytes_transferred",
	Help: "Total bytes transferred to clients",
}, []string{"status"})

// StreamErrors counts stream-related errors. The "error_type" label
// categorizes them (not_found, upstream, unsatisfiable, disconnect).
var StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zeex_stream_errors",
	Help: "Number of stream errors",
}, []string{"error_type"})

// UpstreamRetries counts internal getFile retries after transient upstream
// failures. A climbing rate here means the Bot API is struggling.
var UpstreamRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "zeex_stream_upstream_retries",
	Help: "Number of upstream resolve retries",
})
