package main

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"lessonkb/catalog"
	"lessonkb/config"
	"lessonkb/core"
	"lessonkb/processors"
	"lessonkb/storage"
)

type server struct {
	cfg      *config.Config
	log      *zap.Logger
	lessons  *processors.LessonProcessor
	pipeline *processors.KeyframePipeline
	asr      processors.ASRProvider
	store    storage.KeyframeStore
	catalog  *catalog.Client
}

type processLessonRequest struct {
	LessonDir string `json:"lesson_dir,omitempty"`
	LessonID  int64  `json:"lesson_id,omitempty"`
}

type processLessonResponse struct {
	LessonName string `json:"lesson_name"`
	Steps      int    `json:"steps"`
	Keyframes  int    `json:"keyframes"`
	Stored     int    `json:"stored"`
}

// processLessonHandler ingests one lesson, either from a local directory of
// step files or by lesson ID straight from the catalog.
func (s *server) processLessonHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req processLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	lessonDir := req.LessonDir
	if lessonDir == "" && req.LessonID != 0 {
		dir, err := s.catalog.DownloadLesson(r.Context(), req.LessonID, s.cfg.DataRoot)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		lessonDir = dir
	}
	if lessonDir == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lesson_dir or lesson_id required"})
		return
	}
	if _, err := os.Stat(lessonDir); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lesson dir not found"})
		return
	}

	content, err := s.lessons.ProcessLesson(r.Context(), lessonDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	stored := 0
	if len(content.Keyframes) > 0 {
		stored, err = s.store.SaveKeyframes(r.Context(), content.Keyframes)
		if err != nil {
			s.log.Warn("keyframe store save failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, processLessonResponse{
		LessonName: content.LessonName,
		Steps:      len(content.Steps),
		Keyframes:  len(content.Keyframes),
		Stored:     stored,
	})
}

type extractKeyframesRequest struct {
	VideoRef   string         `json:"video_ref"`
	Segments   []core.Segment `json:"segments,omitempty"`
	StepID     int64          `json:"step_id"`
	LessonName string         `json:"lesson_name"`
}

type extractKeyframesResponse struct {
	Keyframes []core.Keyframe `json:"keyframes"`
}

// extractKeyframesHandler runs the keyframe pipeline for one video,
// independently of lesson ingestion. Segments are transcribed on the fly
// when the caller does not supply them.
func (s *server) extractKeyframesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req extractKeyframesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VideoRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "video_ref required"})
		return
	}
	if req.LessonName == "" {
		req.LessonName = "adhoc"
	}

	segments := req.Segments
	if len(segments) == 0 {
		transcript, err := s.asr.Transcribe(r.Context(), req.VideoRef)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "transcription failed: " + err.Error()})
			return
		}
		segments = transcript.Segments
	}

	keyframes, err := s.pipeline.Extract(r.Context(), req.VideoRef, segments, req.StepID, req.LessonName)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if keyframes == nil {
		keyframes = []core.Keyframe{}
	}
	writeJSON(w, http.StatusOK, extractKeyframesResponse{Keyframes: keyframes})
}

type searchRequest struct {
	LessonName string `json:"lesson_name"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return
	}

	hits, err := s.store.Search(r.Context(), req.LessonName, req.Query, req.TopK)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if hits == nil {
		hits = []core.KeyframeHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
