package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Client talks to the remote course catalog (a Stepik-style REST API).
// Responses are loosely typed upstream; everything is validated here at
// the boundary so malformed records never reach the processing engine.
type Client struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		base:   baseURL,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

// Course is the validated catalog course record: the outline level above
// lessons.
type Course struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Lessons []int64 `json:"lessons"`
}

// Lesson is the validated catalog lesson record.
type Lesson struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Steps []int64 `json:"steps"`
}

func (c *Client) FetchCourse(ctx context.Context, id int64) (*Course, error) {
	var envelope struct {
		Courses []Course `json:"courses"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/courses/%d", c.base, id), &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Courses) == 0 {
		return nil, fmt.Errorf("course %d not found", id)
	}

	course := envelope.Courses[0]
	if course.ID == 0 || course.Title == "" {
		return nil, fmt.Errorf("course %d: malformed record (missing id or title)", id)
	}
	return &course, nil
}

func (c *Client) FetchLesson(ctx context.Context, id int64) (*Lesson, error) {
	var envelope struct {
		Lessons []Lesson `json:"lessons"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/lessons/%d", c.base, id), &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Lessons) == 0 {
		return nil, fmt.Errorf("lesson %d not found", id)
	}

	lesson := envelope.Lessons[0]
	if lesson.ID == 0 || lesson.Title == "" {
		return nil, fmt.Errorf("lesson %d: malformed record (missing id or title)", id)
	}
	return &lesson, nil
}

// FetchStep returns the raw step payload. Parsing and validation of the
// block structure happens in the step parser, which owns that format.
func (c *Client) FetchStep(ctx context.Context, id int64) (json.RawMessage, error) {
	var envelope struct {
		Steps []json.RawMessage `json:"steps"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/steps/%d", c.base, id), &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Steps) == 0 {
		return nil, fmt.Errorf("step %d not found", id)
	}
	return envelope.Steps[0], nil
}

// DownloadLesson materializes a lesson as a directory of step_<n>.json
// files, the layout the lesson processor consumes.
func (c *Client) DownloadLesson(ctx context.Context, id int64, root string) (string, error) {
	lesson, err := c.FetchLesson(ctx, id)
	if err != nil {
		return "", err
	}

	lessonDir := filepath.Join(root, fmt.Sprintf("Lesson_%d_%s", lesson.ID, lesson.Title))
	if err := os.MkdirAll(lessonDir, 0755); err != nil {
		return "", fmt.Errorf("create lesson dir: %w", err)
	}

	for i, stepID := range lesson.Steps {
		raw, err := c.FetchStep(ctx, stepID)
		if err != nil {
			c.log.Warn("step fetch failed, skipping", zap.Int64("step_id", stepID), zap.Error(err))
			continue
		}
		path := filepath.Join(lessonDir, fmt.Sprintf("step_%04d.json", i+1))
		if err := os.WriteFile(path, raw, 0644); err != nil {
			return "", fmt.Errorf("write step file: %w", err)
		}
	}

	c.log.Info("lesson downloaded", zap.Int64("lesson_id", id), zap.Int("steps", len(lesson.Steps)))
	return lessonDir, nil
}

// DownloadCourse walks the course outline and materializes every lesson it
// can. A lesson that fails to download is skipped; the course survives with
// the rest. Returns the directories of the lessons that landed.
func (c *Client) DownloadCourse(ctx context.Context, id int64, root string) ([]string, error) {
	course, err := c.FetchCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, lessonID := range course.Lessons {
		dir, err := c.DownloadLesson(ctx, lessonID, root)
		if err != nil {
			c.log.Warn("lesson download failed, skipping",
				zap.Int64("course_id", id), zap.Int64("lesson_id", lessonID), zap.Error(err))
			continue
		}
		dirs = append(dirs, dir)
	}

	c.log.Info("course downloaded",
		zap.Int64("course_id", id),
		zap.String("title", course.Title),
		zap.Int("lessons", len(dirs)))
	return dirs, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
