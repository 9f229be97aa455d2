package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepTextBlock(t *testing.T) {
	raw := []byte(`{
		"id": 101,
		"position": 2,
		"update_date": "2024-03-01T10:00:00Z",
		"block": {"name": "text", "text": "<p>Maps are <b>unordered</b> collections.</p>"}
	}`)

	step, ok := ParseStep(raw, "step_0002.json")
	require.True(t, ok)
	assert.Equal(t, int64(101), step.StepID)
	assert.Equal(t, 2, step.Position)
	assert.Equal(t, "text", step.BlockName)
	assert.Equal(t, "Maps are unordered collections.", step.Text)
	assert.Empty(t, step.VideoURL)
	assert.Equal(t, "step_0002.json", step.SourceFile)
}

func TestParseStepBlockAsArray(t *testing.T) {
	raw := []byte(`{
		"id": 102,
		"block": [{"name": "text", "text": "plain content"}]
	}`)

	step, ok := ParseStep(raw, "step_0003.json")
	require.True(t, ok)
	assert.Equal(t, "plain content", step.Text)
}

func TestParseStepIgnoresQuizBlocks(t *testing.T) {
	for _, name := range []string{"choice", "matching", "match", "multi_choice", "multiple_choice", "code"} {
		raw := []byte(`{"id": 1, "block": {"name": "` + name + `", "text": "pick one"}}`)
		_, ok := ParseStep(raw, "step_0001.json")
		assert.False(t, ok, "block %q should be ignored", name)
	}
}

func TestParseStepVideoPrefers360p(t *testing.T) {
	raw := []byte(`{
		"id": 103,
		"block": {
			"name": "video",
			"video": {"urls": [
				{"quality": "1080", "url": "http://cdn/v1080.mp4"},
				{"quality": "360", "url": "http://cdn/v360.mp4"},
				{"quality": "720", "url": "http://cdn/v720.mp4"}
			]}
		}
	}`)

	step, ok := ParseStep(raw, "step_0004.json")
	require.True(t, ok)
	assert.Equal(t, "video", step.BlockName)
	assert.Equal(t, "http://cdn/v360.mp4", step.VideoURL)
}

func TestParseStepVideoFallsBackToLowestQuality(t *testing.T) {
	raw := []byte(`{
		"id": 104,
		"block": {
			"name": "video",
			"urls": [
				{"quality": 1080, "src": "http://cdn/v1080.mp4"},
				{"quality": 480, "src": "http://cdn/v480.mp4"}
			]
		}
	}`)

	step, ok := ParseStep(raw, "step_0005.json")
	require.True(t, ok)
	assert.Equal(t, "http://cdn/v480.mp4", step.VideoURL)
}

func TestParseStepVideoWithoutQualityLabels(t *testing.T) {
	raw := []byte(`{
		"id": 105,
		"block": {
			"name": "video",
			"urls": [
				{"link": "http://cdn/first.mp4"},
				{"link": "http://cdn/last.mp4"}
			]
		}
	}`)

	step, ok := ParseStep(raw, "step_0006.json")
	require.True(t, ok)
	assert.Equal(t, "http://cdn/last.mp4", step.VideoURL)
}

func TestParseStepVideoWithoutURLsRejected(t *testing.T) {
	raw := []byte(`{"id": 106, "block": {"name": "video"}}`)
	_, ok := ParseStep(raw, "step_0007.json")
	assert.False(t, ok)
}

func TestParseStepEmptyTextRejected(t *testing.T) {
	raw := []byte(`{"id": 107, "block": {"name": "text", "text": "<p>   </p>"}}`)
	_, ok := ParseStep(raw, "step_0008.json")
	assert.False(t, ok)
}

func TestParseStepMalformedJSON(t *testing.T) {
	_, ok := ParseStep([]byte(`{"id": `), "step_0009.json")
	assert.False(t, ok)
}

func TestCleanHTMLPreservesCodeBlocks(t *testing.T) {
	raw := `<p>Declare a map:</p><pre>m := map[string]int{"a": 1}</pre><p>Then use it.</p>`
	got := CleanHTML(raw)

	assert.Contains(t, got, "Declare a map:")
	assert.Contains(t, got, "```\nm := map[string]int{\"a\": 1}\n```")
	assert.Contains(t, got, "Then use it.")
}

func TestCleanHTMLScrubsProseButNotCode(t *testing.T) {
	raw := `<p>Symbols like @ # $ vanish</p><code>x := a @ b</code>`
	got := CleanHTML(raw)

	assert.NotContains(t, got, "@ # $")
	assert.Contains(t, got, "x := a @ b")
}

func TestCleanHTMLCollapsesWhitespace(t *testing.T) {
	raw := "<p>one   two</p>\n\n\n<p>three</p>"
	got := CleanHTML(raw)
	assert.Contains(t, got, "one two")
	assert.NotContains(t, got, "\n\n\n")
}

func TestCleanHTMLEmptyInput(t *testing.T) {
	assert.Equal(t, "", CleanHTML(""))
	assert.Equal(t, "", CleanHTML("   \n  "))
}

func TestCleanLessonTitle(t *testing.T) {
	assert.Equal(t, "Introduction to Go", CleanLessonTitle("Lesson_12_Introduction to Go"))
	assert.Equal(t, "Slices", CleanLessonTitle("lesson_99_Slices")) // prefix match is case-insensitive
	assert.Equal(t, "plain name", CleanLessonTitle("plain_name"))
	assert.Equal(t, "What's new", CleanLessonTitle("Lesson_3_What's new?"))
}
