package processors

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"lessonkb/core"
	"lessonkb/metrics"
)

// acceptThreshold gates keyframe emission. A window whose best candidate
// does not score strictly above it yields no keyframe.
const acceptThreshold = 0.35

// FrameStorage is the external object-storage collaborator for accepted
// frames.
type FrameStorage interface {
	Upload(ctx context.Context, localPath, key string) error
}

type frameSelector struct {
	embedder Embedder
	frames   FrameStorage
	log      *zap.Logger
}

// Select scores every candidate against the window text, picks the maximum
// (first candidate wins ties, so the lowest timestamp), and emits a
// keyframe only if the winner clears the acceptance threshold and its frame
// uploads successfully. An upload failure drops the window; the runner-up
// is never substituted.
func (s *frameSelector) Select(ctx context.Context, window core.TimeWindow, candidates []core.Candidate, stepID int64, lessonName string) (*core.Keyframe, bool) {
	best := -1
	bestScore := 0.0
	for i := range candidates {
		score := 0.0
		if candidates[i].Description != "" {
			score = ScoreSimilarity(ctx, window.Text, candidates[i].Description, s.embedder)
		}
		candidates[i].Score = score
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best < 0 || !accepted(bestScore) {
		metrics.WindowsDropped.WithLabelValues(metrics.ReasonBelowThreshold).Inc()
		return nil, false
	}

	chosen := candidates[best]
	key := FrameKey(lessonName, stepID, chosen.Timestamp)
	if err := s.frames.Upload(ctx, chosen.ImagePath, key); err != nil {
		s.log.Warn("frame upload failed, dropping window",
			zap.String("key", key),
			zap.Float64("window_start", window.Start),
			zap.Error(err))
		metrics.WindowsDropped.WithLabelValues(metrics.ReasonUploadFailed).Inc()
		return nil, false
	}

	return &core.Keyframe{
		Timestamp:   chosen.Timestamp,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		FrameKey:    key,
		Description: chosen.Description,
		ContextText: window.Text,
		StepID:      stepID,
		LessonName:  lessonName,
	}, true
}

func accepted(score float64) bool {
	return score > acceptThreshold
}

// FrameKey derives the deterministic storage key for an accepted frame.
func FrameKey(lessonName string, stepID int64, timestamp float64) string {
	return fmt.Sprintf("lessons/%s/%d/frame_%d.jpg",
		sanitizeKeyPart(lessonName), stepID, int(math.Floor(timestamp)))
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeKeyPart(s string) string {
	s = strings.TrimSpace(s)
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unnamed"
	}
	return s
}
