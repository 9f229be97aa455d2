package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded by the keyframe pipeline. One bad window or
// candidate never aborts the batch, so counters are the only trace of it.
const (
	ReasonNoCandidates   = "no_candidates"
	ReasonBelowThreshold = "below_threshold"
	ReasonUploadFailed   = "upload_failed"
	ReasonDecodeFailed   = "decode_failed"
	ReasonCaptionFailed  = "caption_failed"
)

var (
	WindowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonkb_windows_processed_total",
		Help: "Transcript windows fed into candidate sampling.",
	})

	WindowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonkb_windows_dropped_total",
		Help: "Windows that yielded no keyframe, by reason.",
	}, []string{"reason"})

	CandidatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonkb_candidates_dropped_total",
		Help: "Frame candidates discarded before selection, by reason.",
	}, []string{"reason"})

	KeyframesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonkb_keyframes_emitted_total",
		Help: "Keyframes accepted and uploaded.",
	})

	VideosFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonkb_videos_failed_total",
		Help: "Video processing invocations that failed fatally (download or open).",
	})

	LessonsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonkb_lessons_processed_total",
		Help: "Lessons persisted to the knowledge base.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
