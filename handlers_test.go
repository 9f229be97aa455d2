package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lessonkb/config"
	"lessonkb/core"
	"lessonkb/media"
	"lessonkb/processors"
	"lessonkb/storage"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubHandle struct{}

func (stubHandle) Duration() float64 { return 300 }
func (stubHandle) ExtractFrame(ctx context.Context, timestamp float64, outPath string) error {
	return os.WriteFile(outPath, []byte("jpeg"), 0644)
}
func (stubHandle) Close() error { return nil }

type stubVideos struct{}

func (stubVideos) Download(ctx context.Context, ref, dest string) error {
	return os.WriteFile(dest, []byte("mp4"), 0644)
}
func (stubVideos) Open(path string) (media.Handle, error) { return stubHandle{}, nil }

type stubCaptioner struct{}

func (stubCaptioner) Describe(ctx context.Context, imagePath string) (string, error) {
	return "a slide", nil
}

type stubFrames struct{}

func (stubFrames) Upload(ctx context.Context, localPath, key string) error { return nil }

type stubASR struct{}

func (stubASR) Transcribe(ctx context.Context, mediaPath string) (core.Transcript, error) {
	return core.Transcript{
		Text:     "spoken words",
		Segments: []core.Segment{{Start: 0, End: 5, Text: "spoken words"}},
	}, nil
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	log := zap.NewNop()
	embedder := stubEmbedder{}
	pipeline := processors.NewKeyframePipeline(stubVideos{}, stubCaptioner{}, embedder, stubFrames{}, t.TempDir(), log)
	return &server{
		cfg:      &config.Config{DataRoot: t.TempDir()},
		log:      log,
		pipeline: pipeline,
		asr:      stubASR{},
		store:    storage.NewMemoryKeyframeStore(embedder),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.healthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestExtractKeyframesHandler(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.extractKeyframesHandler, extractKeyframesRequest{
		VideoRef:   "http://cdn/video.mp4",
		Segments:   []core.Segment{{Start: 0, End: 5, Text: "intro"}},
		StepID:     9,
		LessonName: "Demo",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp extractKeyframesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keyframes, 1)
	assert.Equal(t, int64(9), resp.Keyframes[0].StepID)
	assert.Equal(t, "Demo", resp.Keyframes[0].LessonName)
}

func TestExtractKeyframesHandlerTranscribesWhenNoSegments(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.extractKeyframesHandler, extractKeyframesRequest{
		VideoRef: "http://cdn/video.mp4",
		StepID:   3,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp extractKeyframesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keyframes, 1)
	assert.Equal(t, "adhoc", resp.Keyframes[0].LessonName)
	assert.Equal(t, "spoken words", resp.Keyframes[0].ContextText)
}

func TestExtractKeyframesHandlerRequiresVideoRef(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.extractKeyframesHandler, extractKeyframesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractKeyframesHandlerRejectsGet(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/extract-keyframes", nil)
	rec := httptest.NewRecorder()
	srv.extractKeyframesHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchHandler(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.store.SaveKeyframes(context.Background(), []core.Keyframe{{
		LessonName: "Demo", StepID: 1, Timestamp: 7.5,
		FrameKey: "lessons/Demo/1/frame_7.jpg", ContextText: "intro", Description: "a slide",
	}})
	require.NoError(t, err)

	rec := postJSON(t, srv.searchHandler, searchRequest{LessonName: "Demo", Query: "intro", TopK: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hits []core.KeyframeHit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "lessons/Demo/1/frame_7.jpg", resp.Hits[0].FrameKey)
}

func TestSearchHandlerRequiresQuery(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.searchHandler, searchRequest{LessonName: "Demo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessLessonHandlerRequiresInput(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.processLessonHandler, processLessonRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
