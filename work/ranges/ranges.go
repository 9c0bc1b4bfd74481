package ranges

import (
	"net/http"
	"strconv"
	"strings"
)

// Plan is the computed response decision for a client Range header against a
// file of known total length. Status is 200 for a full-body response, 206 for
// a satisfiable partial window, 416 when the request is unsatisfiable.
type Plan struct {
	Status int   // 200, 206 or 416
	Start  int64 // First byte of the window (inclusive)
	End    int64 // Last byte of the window (inclusive)
	Length int64 // Bytes in the window (End - Start + 1); 0 for 416
}

// PlanRange parses a client Range header value and computes the effective
// byte window for a file of totalSize bytes. It handles the single-range
// forms "bytes=a-b" and "bytes=a-". Anything else, including multi-range
// requests, degrades to a full-content plan rather than an error: video
// players handle a 200 fine, a rejected seek they do not.
//
// Pure function, no I/O. totalSize must be > 0; callers with an unknown
// length fall back to an unranged response before planning.
func PlanRange(header string, totalSize int64) Plan {
	full := Plan{
		Status: http.StatusOK,
		Start:  0,
		End:    totalSize - 1,
		Length: totalSize,
	}

	if header == "" {
		return full
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return full
	}

	// Multi-range degrades to full content
	if strings.Contains(spec, ",") {
		return full
	}

	start, end, ok := parseWindow(spec, totalSize)
	if !ok {
		return full
	}

	if start >= totalSize || start > end {
		return Plan{Status: http.StatusRequestedRangeNotSatisfiable}
	}

	return Plan{
		Status: http.StatusPartialContent,
		Start:  start,
		End:    end,
		Length: end - start + 1,
	}
}

// parseWindow splits "a-b" or "a-" into a clamped [start, end] pair.
// The third return is false for anything that does not parse, which callers
// treat as "no Range header".
func parseWindow(spec string, totalSize int64) (int64, int64, bool) {
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, false
	}

	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])

	// Suffix ranges ("bytes=-500") are not produced by the players this
	// serves; treat them like an absent header.
	if startStr == "" {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	end := totalSize - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return 0, 0, false
		}
		// Clamp open-ended or oversized ends to the last byte
		if end > totalSize-1 {
			end = totalSize - 1
		}
	}

	return start, end, true
}
