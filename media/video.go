package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Source fetches lesson videos to local ephemeral storage. Catalog video
// references are plain HTTP URLs; local paths are accepted too so already
// downloaded material can be reprocessed.
type Source struct {
	client *http.Client
	log    *zap.Logger
}

func NewSource(log *zap.Logger) *Source {
	return &Source{
		client: &http.Client{Timeout: 10 * time.Minute},
		log:    log,
	}
}

func (s *Source) Download(ctx context.Context, ref, dest string) error {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return copyFile(ref, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch video: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	s.log.Debug("video downloaded", zap.String("ref", ref), zap.Int64("bytes", n))
	return nil
}

// Open probes the file and returns a decode handle. The handle is owned by
// exactly one pipeline invocation and released once, at cleanup.
func (s *Source) Open(path string) (Handle, error) {
	dur, err := ProbeDuration(path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return &Video{path: path, duration: dur}, nil
}

// Handle is a decodable video: duration plus timestamp-accurate single
// frame extraction.
type Handle interface {
	Duration() float64
	ExtractFrame(ctx context.Context, timestamp float64, outPath string) error
	Close() error
}

type Video struct {
	path     string
	duration float64
	closed   bool
}

func (v *Video) Duration() float64 { return v.duration }

// ExtractFrame seeks to the given timestamp and decodes one frame to
// outPath. Seeking is only as accurate as the codec-reported timestamps.
func (v *Video) ExtractFrame(ctx context.Context, timestamp float64, outPath string) error {
	if v.closed {
		return fmt.Errorf("video handle already closed")
	}
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", v.path,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg seek %.3fs: %w: %s", timestamp, err, lastLine(stderr.String()))
	}
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no frame at %.3fs", timestamp)
	}
	return nil
}

func (v *Video) Close() error {
	v.closed = true
	return nil
}

// ProbeDuration returns the container-reported duration in seconds.
func ProbeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
