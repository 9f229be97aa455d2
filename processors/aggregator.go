package processors

import (
	"math"
	"strings"

	"lessonkb/core"
)

// DefaultWindowSeconds is the fixed narration window granularity. The
// sampling offsets and acceptance threshold are tuned for this stride, so
// it is deliberately not configurable.
const DefaultWindowSeconds = 15.0

// GroupSegments buckets transcript segments into fixed-duration windows.
// A segment belongs to the window its start time falls into; segments are
// never split across windows. Windows whose aggregated text is empty after
// trimming are not emitted at all.
func GroupSegments(segments []core.Segment, windowSize float64) []core.TimeWindow {
	if len(segments) == 0 || windowSize <= 0 {
		return nil
	}

	last := segments[len(segments)-1].End
	n := int(math.Ceil(last / windowSize))
	if n <= 0 {
		return nil
	}

	buckets := make([][]string, n)
	for _, seg := range segments {
		i := int(seg.Start / windowSize)
		if i < 0 || i >= n {
			continue
		}
		buckets[i] = append(buckets[i], seg.Text)
	}

	windows := make([]core.TimeWindow, 0, n)
	for i, texts := range buckets {
		text := strings.TrimSpace(strings.Join(texts, " "))
		if text == "" {
			continue
		}
		start := float64(i) * windowSize
		windows = append(windows, core.TimeWindow{
			Start:  start,
			End:    start + windowSize,
			Center: start + windowSize/2,
			Text:   text,
		})
	}
	return windows
}
