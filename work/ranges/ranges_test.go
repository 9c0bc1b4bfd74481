package ranges

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanRange(t *testing.T) {
	cases := []struct {
		name   string
		header string
		total  int64
		want   Plan
	}{
		{
			name:   "no header serves full content",
			header: "",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "closed range",
			header: "bytes=0-99",
			total:  1000,
			want:   Plan{Status: http.StatusPartialContent, Start: 0, End: 99, Length: 100},
		},
		{
			name:   "open ended range runs to last byte",
			header: "bytes=900-",
			total:  1000,
			want:   Plan{Status: http.StatusPartialContent, Start: 900, End: 999, Length: 100},
		},
		{
			name:   "end clamped to file size",
			header: "bytes=500-5000",
			total:  1000,
			want:   Plan{Status: http.StatusPartialContent, Start: 500, End: 999, Length: 500},
		},
		{
			name:   "single byte window",
			header: "bytes=0-0",
			total:  1000,
			want:   Plan{Status: http.StatusPartialContent, Start: 0, End: 0, Length: 1},
		},
		{
			name:   "last byte window",
			header: "bytes=999-999",
			total:  1000,
			want:   Plan{Status: http.StatusPartialContent, Start: 999, End: 999, Length: 1},
		},
		{
			name:   "start past end of file is unsatisfiable",
			header: "bytes=1000-1100",
			total:  1000,
			want:   Plan{Status: http.StatusRequestedRangeNotSatisfiable},
		},
		{
			name:   "inverted window is unsatisfiable",
			header: "bytes=500-400",
			total:  1000,
			want:   Plan{Status: http.StatusRequestedRangeNotSatisfiable},
		},
		{
			name:   "multi-range degrades to full content",
			header: "bytes=0-99,200-299",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "suffix range degrades to full content",
			header: "bytes=-500",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "non-bytes unit degrades to full content",
			header: "items=0-99",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "garbage degrades to full content",
			header: "bytes=abc-def",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "missing dash degrades to full content",
			header: "bytes=100",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
		{
			name:   "negative start degrades to full content",
			header: "bytes=-5-10",
			total:  1000,
			want:   Plan{Status: http.StatusOK, Start: 0, End: 999, Length: 1000},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PlanRange(tc.header, tc.total)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPlanRangeLengthMatchesWindow(t *testing.T) {
	plan := PlanRange("bytes=1000-1999", 5000)
	assert.Equal(t, http.StatusPartialContent, plan.Status)
	assert.Equal(t, plan.End-plan.Start+1, plan.Length)
	assert.Equal(t, int64(1000), plan.Length)
}
