package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"subtitler/internal/services"
)

// DefaultTimeout bounds a single ffprobe call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Duration   string            `json:"duration"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

type outputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Prober runs ffprobe with a per-call deadline.
type Prober struct {
	binary  string
	timeout time.Duration
	run     outputRunner
}

// NewProber constructs a prober. Empty binary means "ffprobe"; a non-positive
// timeout means DefaultTimeout.
func NewProber(binary string, timeout time.Duration) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{binary: binary, timeout: timeout, run: defaultOutputRunner}
}

// WithRunner replaces the process runner, for tests.
func (p *Prober) WithRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if p != nil && run != nil {
		p.run = run
	}
}

// Inspect executes ffprobe against path and decodes the JSON response.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrProbe, "probe", "inspect", "empty path", nil)
	}
	output, err := p.exec(ctx, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrProbe, "probe", "inspect", fmt.Sprintf("ffprobe failed for %s", path), err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrProbe, "probe", "inspect", "decode ffprobe json", err)
	}
	return result, nil
}

// Duration returns the container duration of path in seconds. Tool errors,
// timeouts, and non-numeric or non-positive output are all probe failures.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", "empty path", nil)
	}
	output, err := p.exec(ctx, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", "--", path)
	if err != nil {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", fmt.Sprintf("ffprobe failed for %s", path), err)
	}
	text := strings.TrimSpace(string(output))
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", fmt.Sprintf("non-numeric duration %q", text), err)
	}
	if seconds <= 0 {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", fmt.Sprintf("non-positive duration %v", seconds), nil)
	}
	return seconds, nil
}

func (p *Prober) exec(ctx context.Context, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	output, err := p.run(runCtx, p.binary, args...)
	if err != nil && runCtx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", err, runCtx.Err())
	}
	return output, err
}

// Inspect is a convenience wrapper around a default Prober.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	return NewProber(binary, 0).Inspect(ctx, path)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

// SubtitleStreamCount returns the number of subtitle streams discovered.
func (r Result) SubtitleStreamCount() int {
	return r.countStreams("subtitle")
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return output, nil
}
