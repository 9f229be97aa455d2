package kb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lessonkb/core"
)

func TestSaveLessonWritesContentAndKeyframes(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zap.NewNop())

	lesson := core.LessonContent{
		LessonName: "Concurrency Basics",
		Steps: []core.Step{
			{StepID: 1, UpdateDate: "2024-03-01T10:00:00Z", Text: "Goroutines are cheap."},
			{StepID: 2, Text: "Watch the demo.", Transcript: "in this video we spawn goroutines"},
		},
		Keyframes: []core.Keyframe{
			{Timestamp: 7.5, WindowStart: 0, WindowEnd: 15, FrameKey: "lessons/Concurrency_Basics/2/frame_7.jpg",
				Description: "terminal output", ContextText: "we spawn goroutines", StepID: 2, LessonName: "Concurrency Basics"},
		},
	}

	require.NoError(t, w.SaveLesson(lesson))

	content, err := os.ReadFile(filepath.Join(root, "Concurrency Basics", "content.txt"))
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "LESSON: Concurrency Basics")
	assert.Contains(t, text, "STEP ID: 1")
	assert.Contains(t, text, "UPDATED: 2024-03-01T10:00:00Z")
	assert.Contains(t, text, "Goroutines are cheap.")
	assert.Contains(t, text, "[TRANSCRIPT]:")
	assert.Contains(t, text, "in this video we spawn goroutines")

	raw, err := os.ReadFile(filepath.Join(root, "Concurrency Basics", "keyframes.json"))
	require.NoError(t, err)
	var keyframes []core.Keyframe
	require.NoError(t, json.Unmarshal(raw, &keyframes))
	require.Len(t, keyframes, 1)
	assert.Equal(t, "lessons/Concurrency_Basics/2/frame_7.jpg", keyframes[0].FrameKey)
}

func TestSaveLessonEmptyKeyframesWritesArray(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zap.NewNop())

	require.NoError(t, w.SaveLesson(core.LessonContent{
		LessonName: "Text Only",
		Steps:      []core.Step{{StepID: 3, Text: "no video here"}},
	}))

	raw, err := os.ReadFile(filepath.Join(root, "Text Only", "keyframes.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	var keyframes []core.Keyframe
	require.NoError(t, json.Unmarshal(raw, &keyframes))
	assert.Empty(t, keyframes)
}

func TestSaveLessonOverwritesExistingEntry(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zap.NewNop())

	first := core.LessonContent{LessonName: "Repeat", Steps: []core.Step{{StepID: 1, Text: "v1"}}}
	require.NoError(t, w.SaveLesson(first))

	second := core.LessonContent{LessonName: "Repeat", Steps: []core.Step{{StepID: 1, Text: "v2"}}}
	require.NoError(t, w.SaveLesson(second))

	content, err := os.ReadFile(filepath.Join(root, "Repeat", "content.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "v2")
	assert.NotContains(t, string(content), "v1")
}
