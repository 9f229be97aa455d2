package processors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonkb/core"
)

func TestGroupSegmentsSparseNarration(t *testing.T) {
	segments := []core.Segment{
		{Start: 0, End: 5, Text: "intro"},
		{Start: 20, End: 25, Text: "main point"},
		{Start: 50, End: 55, Text: "end"},
	}

	windows := GroupSegments(segments, DefaultWindowSeconds)
	require.Len(t, windows, 3)

	assert.Equal(t, 0.0, windows[0].Start)
	assert.Equal(t, 15.0, windows[0].End)
	assert.Equal(t, 7.5, windows[0].Center)
	assert.Equal(t, "intro", windows[0].Text)

	assert.Equal(t, 15.0, windows[1].Start)
	assert.Equal(t, "main point", windows[1].Text)

	// [30, 45) had no narration and must not appear.
	assert.Equal(t, 45.0, windows[2].Start)
	assert.Equal(t, "end", windows[2].Text)
}

func TestGroupSegmentsJoinsWithinWindow(t *testing.T) {
	segments := []core.Segment{
		{Start: 1, End: 4, Text: "first"},
		{Start: 6, End: 9, Text: "second"},
		{Start: 12, End: 14, Text: "third"},
	}

	windows := GroupSegments(segments, DefaultWindowSeconds)
	require.Len(t, windows, 1)
	assert.Equal(t, "first second third", windows[0].Text)
}

func TestGroupSegmentsMembershipByStartOnly(t *testing.T) {
	// Segment straddles the 15s boundary; it belongs to the first window.
	segments := []core.Segment{
		{Start: 14, End: 18, Text: "straddler"},
	}

	windows := GroupSegments(segments, DefaultWindowSeconds)
	require.Len(t, windows, 1)
	assert.Equal(t, 0.0, windows[0].Start)
	assert.Equal(t, "straddler", windows[0].Text)
}

func TestGroupSegmentsDropsWhitespaceWindows(t *testing.T) {
	segments := []core.Segment{
		{Start: 0, End: 3, Text: "   "},
		{Start: 16, End: 20, Text: "spoken"},
	}

	windows := GroupSegments(segments, DefaultWindowSeconds)
	require.Len(t, windows, 1)
	assert.Equal(t, 15.0, windows[0].Start)
}

func TestGroupSegmentsWindowCountBound(t *testing.T) {
	segments := []core.Segment{
		{Start: 0, End: 2, Text: "a"},
		{Start: 31, End: 33, Text: "b"},
		{Start: 59, End: 61.5, Text: "c"},
	}

	windows := GroupSegments(segments, DefaultWindowSeconds)
	maxEnd := segments[len(segments)-1].End
	bound := int(math.Ceil(maxEnd / DefaultWindowSeconds))
	assert.LessOrEqual(t, len(windows), bound)
	for _, w := range windows {
		assert.NotEmpty(t, w.Text)
		assert.Equal(t, w.Start+DefaultWindowSeconds/2, w.Center)
	}
}

func TestGroupSegmentsIdempotent(t *testing.T) {
	segments := []core.Segment{
		{Start: 0, End: 5, Text: "one"},
		{Start: 20, End: 25, Text: "two"},
	}
	first := GroupSegments(segments, DefaultWindowSeconds)
	second := GroupSegments(segments, DefaultWindowSeconds)
	assert.Equal(t, first, second)
}

func TestGroupSegmentsEmptyInput(t *testing.T) {
	assert.Nil(t, GroupSegments(nil, DefaultWindowSeconds))
	assert.Nil(t, GroupSegments([]core.Segment{}, DefaultWindowSeconds))
	assert.Nil(t, GroupSegments([]core.Segment{{Start: 0, End: 5, Text: "x"}}, 0))
}
