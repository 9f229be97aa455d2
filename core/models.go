package core

// Segment is one transcribed utterance. Segments come from the
// transcription collaborator ordered by start time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full output of the transcription collaborator.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// TimeWindow is a fixed-duration bucket over the video timeline used to
// aggregate narration before frame selection. Windows never overlap and
// are numbered by a fixed stride from video start.
type TimeWindow struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Center float64 `json:"center"`
	Text   string  `json:"text"`
}

// Candidate is a sampled video frame plus its generated description and
// similarity score. Candidates are transient: at most three per window,
// discarded after selection except the chosen one.
type Candidate struct {
	Timestamp   float64 `json:"timestamp"`
	ImagePath   string  `json:"image_path"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Keyframe is the accepted, persisted representative frame for one window.
// Immutable after creation.
type Keyframe struct {
	Timestamp   float64 `json:"timestamp"`
	WindowStart float64 `json:"window_start"`
	WindowEnd   float64 `json:"window_end"`
	FrameKey    string  `json:"frame_key"`
	Description string  `json:"description"`
	ContextText string  `json:"context_text"`
	StepID      int64   `json:"step_id"`
	LessonName  string  `json:"lesson_name"`
}

// Step is a parsed lesson step after boundary validation and HTML cleanup.
type Step struct {
	StepID     int64  `json:"step_id"`
	Position   int    `json:"position"`
	UpdateDate string `json:"update_date"`
	BlockName  string `json:"block_name"`
	Text       string `json:"text"`
	VideoURL   string `json:"video_url"`
	Transcript string `json:"transcript"`
	SourceFile string `json:"source_file"`
}

// LessonContent is the knowledge-base entry for one lesson: cleaned step
// text, transcripts, and the ordered keyframe list.
type LessonContent struct {
	LessonName string     `json:"lesson_name"`
	Steps      []Step     `json:"steps"`
	Keyframes  []Keyframe `json:"keyframes"`
}

// KeyframeHit is one search result from the keyframe store.
type KeyframeHit struct {
	Score       float64 `json:"score"`
	LessonName  string  `json:"lesson_name"`
	StepID      int64   `json:"step_id"`
	Timestamp   float64 `json:"timestamp"`
	FrameKey    string  `json:"frame_key"`
	Description string  `json:"description"`
	ContextText string  `json:"context_text"`
}
