package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lessonkb/core"
	"lessonkb/metrics"
)

const (
	stepFilePrefix = "step_"
	stepFileSuffix = ".json"
)

// LessonWriter persists a finished lesson entry to the knowledge base.
type LessonWriter interface {
	SaveLesson(lesson core.LessonContent) error
}

// LessonProcessor walks one lesson directory of catalog step files,
// transcribes video steps, extracts keyframes, and hands the assembled
// entry to the knowledge-base writer.
type LessonProcessor struct {
	asr               ASRProvider
	pipeline          *KeyframePipeline
	writer            LessonWriter
	log               *zap.Logger
	keyframesDisabled bool
}

func NewLessonProcessor(asr ASRProvider, pipeline *KeyframePipeline, writer LessonWriter, keyframesDisabled bool, log *zap.Logger) *LessonProcessor {
	return &LessonProcessor{
		asr:               asr,
		pipeline:          pipeline,
		writer:            writer,
		log:               log,
		keyframesDisabled: keyframesDisabled,
	}
}

// ProcessLesson parses every step file in the lesson directory in order.
// A video step that fails fatally still contributes its text; only its
// keyframe list stays empty.
func (lp *LessonProcessor) ProcessLesson(ctx context.Context, lessonDir string) (*core.LessonContent, error) {
	stepFiles, err := listStepFiles(lessonDir)
	if err != nil {
		return nil, err
	}

	lessonName := CleanLessonTitle(filepath.Base(lessonDir))
	lp.log.Info("processing lesson", zap.String("lesson", lessonName), zap.Int("steps", len(stepFiles)))

	content := &core.LessonContent{LessonName: lessonName}
	for _, stepFile := range stepFiles {
		raw, err := os.ReadFile(stepFile)
		if err != nil {
			lp.log.Warn("unreadable step file, skipping", zap.String("file", stepFile), zap.Error(err))
			continue
		}

		step, ok := ParseStep(raw, filepath.Base(stepFile))
		if !ok {
			continue
		}

		segments := cachedSegments(raw)
		if step.VideoURL != "" && step.Transcript == "" {
			transcript, err := lp.asr.Transcribe(ctx, step.VideoURL)
			if err != nil {
				lp.log.Warn("transcription failed, keeping step text only",
					zap.Int64("step_id", step.StepID), zap.Error(err))
			} else {
				step.Transcript = transcript.Text
				segments = transcript.Segments
				lp.cacheTranscript(stepFile, raw, transcript)
			}
		}

		if step.VideoURL != "" && !lp.keyframesDisabled && len(segments) > 0 {
			keyframes, err := lp.pipeline.Extract(ctx, step.VideoURL, segments, step.StepID, lessonName)
			if err != nil {
				lp.log.Warn("keyframe extraction failed, lesson keeps text only for this step",
					zap.Int64("step_id", step.StepID), zap.Error(err))
			} else {
				content.Keyframes = append(content.Keyframes, keyframes...)
			}
		}

		content.Steps = append(content.Steps, *step)
	}

	if err := lp.writer.SaveLesson(*content); err != nil {
		return nil, fmt.Errorf("persist lesson %s: %w", lessonName, err)
	}
	metrics.LessonsProcessed.Inc()
	return content, nil
}

// cacheTranscript writes the generated transcript back into the step file
// so reprocessing the lesson skips the transcription call.
func (lp *LessonProcessor) cacheTranscript(stepFile string, raw []byte, transcript core.Transcript) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}
	doc["transcript"] = transcript.Text
	doc["_generated_transcript"] = transcript.Text
	doc["_segments"] = transcript.Segments

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(stepFile, out, 0644); err != nil {
		lp.log.Warn("transcript cache write failed", zap.String("file", stepFile), zap.Error(err))
	}
}

// cachedSegments pulls previously generated segments out of a step file.
func cachedSegments(raw []byte) []core.Segment {
	var cached struct {
		Segments []core.Segment `json:"_segments"`
	}
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	return cached.Segments
}

func listStepFiles(lessonDir string) ([]string, error) {
	entries, err := os.ReadDir(lessonDir)
	if err != nil {
		return nil, fmt.Errorf("read lesson dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, stepFilePrefix) && strings.HasSuffix(name, stepFileSuffix) {
			files = append(files, filepath.Join(lessonDir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

var (
	lessonDirPattern  = regexp.MustCompile(`(?i)^Lesson_\d+_(.+)$`)
	forbiddenInTitles = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// CleanLessonTitle turns a lesson directory name into a display name.
func CleanLessonTitle(dirName string) string {
	name := dirName
	if m := lessonDirPattern.FindStringSubmatch(dirName); m != nil {
		name = strings.TrimSpace(m[1])
	} else {
		name = strings.TrimSpace(strings.ReplaceAll(dirName, "_", " "))
	}
	return strings.TrimSpace(forbiddenInTitles.ReplaceAllString(name, ""))
}
