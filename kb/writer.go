package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lessonkb/core"
)

// Writer persists finished lesson entries under the knowledge-base root:
// one directory per lesson holding content.txt (step text plus transcripts)
// and keyframes.json (the ordered keyframe records). The writer runs only
// after all windows of a lesson completed, so there are no partial writes
// of either file.
type Writer struct {
	root string
	log  *zap.Logger
}

func NewWriter(root string, log *zap.Logger) *Writer {
	return &Writer{root: root, log: log}
}

func (w *Writer) SaveLesson(lesson core.LessonContent) error {
	lessonDir := filepath.Join(w.root, lesson.LessonName)
	if err := os.MkdirAll(lessonDir, 0755); err != nil {
		return fmt.Errorf("create lesson dir: %w", err)
	}

	if err := w.writeContent(lessonDir, lesson); err != nil {
		return err
	}
	if err := w.writeKeyframes(lessonDir, lesson.Keyframes); err != nil {
		return err
	}

	w.log.Info("lesson persisted",
		zap.String("lesson", lesson.LessonName),
		zap.Int("steps", len(lesson.Steps)),
		zap.Int("keyframes", len(lesson.Keyframes)))
	return nil
}

func (w *Writer) writeContent(lessonDir string, lesson core.LessonContent) error {
	parts := []string{
		"LESSON: " + lesson.LessonName,
		strings.Repeat("=", 50),
	}

	for _, step := range lesson.Steps {
		parts = append(parts, fmt.Sprintf("\nSTEP ID: %d", step.StepID))
		if step.UpdateDate != "" {
			parts = append(parts, "UPDATED: "+step.UpdateDate)
		}
		parts = append(parts, strings.Repeat("-", 20))

		if step.Text != "" {
			parts = append(parts, step.Text)
		}
		if step.Transcript != "" {
			parts = append(parts, "\n[TRANSCRIPT]:", step.Transcript)
		}
	}

	path := filepath.Join(lessonDir, "content.txt")
	if err := os.WriteFile(path, []byte(strings.Join(parts, "\n")), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *Writer) writeKeyframes(lessonDir string, keyframes []core.Keyframe) error {
	if keyframes == nil {
		keyframes = []core.Keyframe{}
	}
	data, err := json.MarshalIndent(keyframes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keyframes: %w", err)
	}
	path := filepath.Join(lessonDir, "keyframes.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
