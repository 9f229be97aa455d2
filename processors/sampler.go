package processors

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lessonkb/core"
	"lessonkb/media"
	"lessonkb/metrics"
)

// captureSpread is the offset of the side capture points around the window
// center, in seconds.
const captureSpread = 3.0

// Captioner is the external frame-description collaborator.
type Captioner interface {
	Describe(ctx context.Context, imagePath string) (string, error)
}

// candidateSampler materializes up to three frame candidates per window
// into the invocation temp dir and captions each of them.
type candidateSampler struct {
	video     media.Handle
	tmpDir    string
	captioner Captioner
	log       *zap.Logger
}

// Sample decodes frames at center-3s, center, center+3s. Capture points
// outside [0, duration] are skipped, as is any point whose decode fails;
// a caption failure keeps the candidate but leaves its description empty.
// Candidate order matches capture-point order.
func (s *candidateSampler) Sample(ctx context.Context, window core.TimeWindow) []core.Candidate {
	points := []float64{
		window.Center - captureSpread,
		window.Center,
		window.Center + captureSpread,
	}

	candidates := make([]core.Candidate, 0, len(points))
	for _, ts := range points {
		if ts < 0 || ts > s.video.Duration() {
			continue
		}

		framePath := filepath.Join(s.tmpDir, fmt.Sprintf("frame_%07d.jpg", int(ts*100)))
		if err := s.video.ExtractFrame(ctx, ts, framePath); err != nil {
			s.log.Warn("frame decode failed, dropping candidate",
				zap.Float64("timestamp", ts), zap.Error(err))
			metrics.CandidatesDropped.WithLabelValues(metrics.ReasonDecodeFailed).Inc()
			continue
		}

		description, err := s.captioner.Describe(ctx, framePath)
		if err != nil {
			s.log.Warn("caption failed, candidate stays unscored",
				zap.Float64("timestamp", ts), zap.Error(err))
			metrics.CandidatesDropped.WithLabelValues(metrics.ReasonCaptionFailed).Inc()
			description = ""
		}

		candidates = append(candidates, core.Candidate{
			Timestamp:   ts,
			ImagePath:   framePath,
			Description: strings.TrimSpace(description),
		})
	}
	return candidates
}
