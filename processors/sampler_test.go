package processors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lessonkb/core"
)

// fakeHandle is an in-memory media.Handle: decoding a frame just touches
// the output file.
type fakeHandle struct {
	duration float64
	failAt   map[float64]bool
	decoded  []float64
	closed   bool
}

func (f *fakeHandle) Duration() float64 { return f.duration }

func (f *fakeHandle) ExtractFrame(ctx context.Context, timestamp float64, outPath string) error {
	if f.failAt[timestamp] {
		return errors.New("decode error")
	}
	f.decoded = append(f.decoded, timestamp)
	return os.WriteFile(outPath, []byte("jpeg"), 0644)
}

func (f *fakeHandle) Close() error {
	f.closed = true
	return nil
}

type fakeCaptioner struct {
	fallback string
	err      error
	calls    int
}

func (f *fakeCaptioner) Describe(ctx context.Context, imagePath string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.fallback != "" {
		return f.fallback, nil
	}
	return fmt.Sprintf("caption %d", f.calls), nil
}

func TestSampleThreeCandidatesAroundCenter(t *testing.T) {
	handle := &fakeHandle{duration: 60}
	captioner := &fakeCaptioner{}
	sampler := &candidateSampler{video: handle, tmpDir: t.TempDir(), captioner: captioner, log: zap.NewNop()}

	window := core.TimeWindow{Start: 15, End: 30, Center: 22.5, Text: "narration"}
	candidates := sampler.Sample(context.Background(), window)

	require.Len(t, candidates, 3)
	assert.Equal(t, []float64{19.5, 22.5, 25.5}, handle.decoded)
	for _, c := range candidates {
		assert.FileExists(t, c.ImagePath)
		assert.NotEmpty(t, c.Description)
	}
}

func TestSampleSkipsPointsOutsideVideo(t *testing.T) {
	handle := &fakeHandle{duration: 10}
	sampler := &candidateSampler{video: handle, tmpDir: t.TempDir(), captioner: &fakeCaptioner{}, log: zap.NewNop()}

	// First window: center-3 = 4.5 and center = 7.5 fit, center+3 = 10.5
	// is past the end.
	window := core.TimeWindow{Start: 0, End: 15, Center: 7.5, Text: "short video"}
	candidates := sampler.Sample(context.Background(), window)

	require.Len(t, candidates, 2)
	assert.Equal(t, 4.5, candidates[0].Timestamp)
	assert.Equal(t, 7.5, candidates[1].Timestamp)
}

func TestSampleSkipsNegativePoints(t *testing.T) {
	handle := &fakeHandle{duration: 60}
	sampler := &candidateSampler{video: handle, tmpDir: t.TempDir(), captioner: &fakeCaptioner{}, log: zap.NewNop()}

	window := core.TimeWindow{Start: 0, End: 15, Center: 2.0, Text: "early"}
	candidates := sampler.Sample(context.Background(), window)

	require.Len(t, candidates, 2)
	assert.Equal(t, 2.0, candidates[0].Timestamp)
	assert.Equal(t, 5.0, candidates[1].Timestamp)
}

func TestSampleDecodeFailureDropsOnlyThatCandidate(t *testing.T) {
	handle := &fakeHandle{duration: 60, failAt: map[float64]bool{22.5: true}}
	sampler := &candidateSampler{video: handle, tmpDir: t.TempDir(), captioner: &fakeCaptioner{}, log: zap.NewNop()}

	window := core.TimeWindow{Start: 15, End: 30, Center: 22.5, Text: "narration"}
	candidates := sampler.Sample(context.Background(), window)

	require.Len(t, candidates, 2)
	assert.Equal(t, 19.5, candidates[0].Timestamp)
	assert.Equal(t, 25.5, candidates[1].Timestamp)
}

func TestSampleCaptionFailureKeepsCandidateUnscored(t *testing.T) {
	handle := &fakeHandle{duration: 60}
	captioner := &fakeCaptioner{err: errors.New("vision model down")}
	sampler := &candidateSampler{video: handle, tmpDir: t.TempDir(), captioner: captioner, log: zap.NewNop()}

	window := core.TimeWindow{Start: 15, End: 30, Center: 22.5, Text: "narration"}
	candidates := sampler.Sample(context.Background(), window)

	require.Len(t, candidates, 3)
	for _, c := range candidates {
		assert.Empty(t, c.Description)
	}
}
