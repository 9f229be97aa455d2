package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lessonkb/core"
	"lessonkb/media"
	"lessonkb/metrics"
)

// VideoProvider downloads a video reference to local storage and opens a
// decode handle on it.
type VideoProvider interface {
	Download(ctx context.Context, ref, dest string) error
	Open(path string) (media.Handle, error)
}

// KeyframePipeline turns one narrated video into an ordered keyframe list:
// transcript windows, candidate frames per window, cross-modal scoring, and
// threshold-gated selection. The pipeline is a pure function of
// (segments, videoRef, stepID, lessonName) apart from its collaborators'
// side effects.
type KeyframePipeline struct {
	videos     VideoProvider
	captioner  Captioner
	embedder   Embedder
	frames     FrameStorage
	log        *zap.Logger
	windowSize float64
	tempRoot   string
}

func NewKeyframePipeline(videos VideoProvider, captioner Captioner, embedder Embedder, frames FrameStorage, tempRoot string, log *zap.Logger) *KeyframePipeline {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	return &KeyframePipeline{
		videos:     videos,
		captioner:  captioner,
		embedder:   embedder,
		frames:     frames,
		log:        log,
		windowSize: DefaultWindowSeconds,
		tempRoot:   tempRoot,
	}
}

// Extract runs the full pipeline for one video. Download or open failure is
// fatal to the invocation and returns an empty list with an error; every
// smaller failure drops only the window or candidate it belongs to. The
// per-invocation temp directory is removed on every exit path. Keyframes
// come back ordered by ascending window start.
func (p *KeyframePipeline) Extract(ctx context.Context, videoRef string, segments []core.Segment, stepID int64, lessonName string) ([]core.Keyframe, error) {
	windows := GroupSegments(segments, p.windowSize)
	if len(windows) == 0 {
		p.log.Info("no narrated windows, nothing to extract",
			zap.Int64("step_id", stepID), zap.Int("segments", len(segments)))
		return nil, nil
	}

	tmpDir, err := os.MkdirTemp(p.tempRoot, "keyframes-"+uuid.NewString()[:8]+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	videoPath := filepath.Join(tmpDir, "source.mp4")
	if err := p.videos.Download(ctx, videoRef, videoPath); err != nil {
		metrics.VideosFailed.Inc()
		return nil, fmt.Errorf("download video: %w", err)
	}

	video, err := p.videos.Open(videoPath)
	if err != nil {
		metrics.VideosFailed.Inc()
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer video.Close()

	sampler := &candidateSampler{video: video, tmpDir: tmpDir, captioner: p.captioner, log: p.log}
	selector := &frameSelector{embedder: p.embedder, frames: p.frames, log: p.log}

	keyframes := make([]core.Keyframe, 0, len(windows))
	for _, window := range windows {
		metrics.WindowsProcessed.Inc()

		candidates := sampler.Sample(ctx, window)
		if len(candidates) == 0 {
			metrics.WindowsDropped.WithLabelValues(metrics.ReasonNoCandidates).Inc()
			continue
		}

		keyframe, ok := selector.Select(ctx, window, candidates, stepID, lessonName)
		if !ok {
			continue
		}
		keyframes = append(keyframes, *keyframe)
		metrics.KeyframesEmitted.Inc()
	}

	p.log.Info("keyframe extraction finished",
		zap.Int64("step_id", stepID),
		zap.Int("windows", len(windows)),
		zap.Int("keyframes", len(keyframes)))
	return keyframes, nil
}
