package processors

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"lessonkb/config"
	"lessonkb/core"
	"lessonkb/media"
	"lessonkb/storage"
)

// ASRProvider is the external transcription collaborator.
type ASRProvider interface {
	Transcribe(ctx context.Context, mediaPath string) (core.Transcript, error)
}

// PickASRProvider chooses the transcription backend from configuration.
// Without a usable API the mock keeps the rest of the pipeline exercisable.
func PickASRProvider(cfg *config.Config, videos VideoProvider, log *zap.Logger) ASRProvider {
	if cfg.ASR == "mock" || !cfg.HasValidAPI() {
		if cfg.ASR != "mock" {
			log.Warn("API configuration missing, using mock transcription")
		}
		return MockASR{}
	}
	return &WhisperASR{cli: storage.Client(cfg), model: cfg.WhisperModel, videos: videos}
}

// WhisperASR transcribes through the OpenAI-compatible audio API. The
// verbose JSON response format carries per-segment timing, which the
// windowing step depends on. Remote references are fetched to a temp file
// first; the API wants a local path.
type WhisperASR struct {
	cli    *openai.Client
	model  string
	videos VideoProvider
}

func (w *WhisperASR) Transcribe(ctx context.Context, mediaRef string) (core.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	mediaPath := mediaRef
	if strings.HasPrefix(mediaRef, "http://") || strings.HasPrefix(mediaRef, "https://") {
		tmp, err := os.CreateTemp("", "transcribe-*.mp4")
		if err != nil {
			return core.Transcript{}, fmt.Errorf("create temp file: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())
		if err := w.videos.Download(ctx, mediaRef, tmp.Name()); err != nil {
			return core.Transcript{}, fmt.Errorf("fetch media: %w", err)
		}
		mediaPath = tmp.Name()
	}

	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: mediaPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return core.Transcript{}, fmt.Errorf("transcription API failed: %w", err)
	}

	transcript := core.Transcript{Text: resp.Text}
	for _, seg := range resp.Segments {
		transcript.Segments = append(transcript.Segments, core.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	if len(transcript.Segments) == 0 && transcript.Text != "" {
		transcript.Segments = []core.Segment{{Start: 0, End: resp.Duration, Text: transcript.Text}}
	}
	return transcript, nil
}

// MockASR synthesizes fixed-length placeholder segments from the probed
// media duration. Useful offline and in tests.
type MockASR struct{}

func (MockASR) Transcribe(ctx context.Context, mediaPath string) (core.Transcript, error) {
	dur, err := media.ProbeDuration(mediaPath)
	if err != nil {
		return core.Transcript{}, err
	}

	const segLen = 15.0
	var segments []core.Segment
	for start := 0.0; start < dur; start += segLen {
		end := start + segLen
		if end > dur {
			end = dur
		}
		segments = append(segments, core.Segment{
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("Placeholder transcript from %.0fs to %.0fs", start, end),
		})
	}

	transcript := core.Transcript{Segments: segments}
	for i, seg := range segments {
		if i > 0 {
			transcript.Text += " "
		}
		transcript.Text += seg.Text
	}
	return transcript, nil
}
