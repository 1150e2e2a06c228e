package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"subtitler/internal/config"
	"subtitler/internal/logging"
	"subtitler/internal/services"
)

const bytesPerMB = 1024 * 1024

// VideoPart is one time-bounded slice of a source video.
type VideoPart struct {
	Path     string
	Sequence int
	Offset   float64
	Duration float64
	// Temporary parts were cut by the splitter and must be removed by the
	// caller once processed. The source video itself is never temporary.
	Temporary bool
}

// DurationProber measures a media file's duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// Splitter cuts oversized videos into equal-duration parts with ffmpeg.
type Splitter struct {
	ffmpeg     string
	prober     DurationProber
	cutTimeout func(partMB float64) time.Duration
	run        commandRunner
	logger     *slog.Logger
}

// NewSplitter constructs a splitter using the configured ffmpeg binary and cut timeouts.
func NewSplitter(cfg *config.Config, prober DurationProber, logger *slog.Logger) *Splitter {
	binary := "ffmpeg"
	cutTimeout := func(float64) time.Duration { return 2 * time.Minute }
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Tools.FFmpeg); b != "" {
			binary = b
		}
		cutTimeout = cfg.CutTimeout
	}
	return &Splitter{
		ffmpeg:     binary,
		prober:     prober,
		cutTimeout: cutTimeout,
		run:        defaultCommandRunner,
		logger:     logging.NewComponentLogger(logger, "split"),
	}
}

// WithCommandRunner replaces the ffmpeg runner, for tests.
func (s *Splitter) WithCommandRunner(r func(ctx context.Context, name string, args ...string) error) {
	if s != nil && r != nil {
		s.run = r
	}
}

// FileSizeMB returns the size of path in megabytes.
func FileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, services.Wrap(services.ErrNotFound, "probe", "stat", fmt.Sprintf("video not found: %s", path), err)
		}
		return 0, services.Wrap(services.ErrProbe, "probe", "stat", path, err)
	}
	if info.IsDir() {
		return 0, services.Wrap(services.ErrValidation, "probe", "stat", fmt.Sprintf("%s is a directory", path), nil)
	}
	return float64(info.Size()) / bytesPerMB, nil
}

// NeedsSplit reports whether a file of sizeMB exceeds thresholdMB.
func NeedsSplit(sizeMB, thresholdMB float64) bool {
	return thresholdMB > 0 && sizeMB > thresholdMB
}

// PartCount returns ceil(sizeMB / thresholdMB), never less than one.
func PartCount(sizeMB, thresholdMB float64) int {
	if thresholdMB <= 0 || sizeMB <= thresholdMB {
		return 1
	}
	return int(math.Ceil(sizeMB / thresholdMB))
}

// Split cuts video into contiguous parts inside dir. When the file does not
// exceed the threshold the source itself is returned as the only part.
//
// A probe failure returns no parts. A cut failure stops further cuts and
// returns the parts produced so far together with an ErrSplit error.
func (s *Splitter) Split(ctx context.Context, video, dir string, thresholdMB float64) ([]VideoPart, error) {
	sizeMB, err := FileSizeMB(video)
	if err != nil {
		return nil, err
	}
	total, err := s.prober.Duration(ctx, video)
	if err != nil {
		return nil, err
	}
	count := PartCount(sizeMB, thresholdMB)
	if count == 1 {
		return []VideoPart{{Path: video, Sequence: 1, Offset: 0, Duration: total}}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSplit, "split", "mkdir", dir, err)
	}

	partDuration := total / float64(count)
	partMB := sizeMB / float64(count)
	ext := filepath.Ext(video)
	if ext == "" {
		ext = ".mp4"
	}

	s.logger.Info("splitting video",
		logging.String("video", video),
		logging.Float64("size_mb", sizeMB),
		logging.Float64("threshold_mb", thresholdMB),
		logging.Int(logging.FieldPartCount, count),
		logging.Float64("part_duration_seconds", partDuration),
		logging.String(logging.FieldEventType, "split_planned"),
	)

	parts := make([]VideoPart, 0, count)
	for i := 0; i < count; i++ {
		part := VideoPart{
			Path:      filepath.Join(dir, fmt.Sprintf("part_%03d%s", i+1, ext)),
			Sequence:  i + 1,
			Offset:    float64(i) * partDuration,
			Duration:  partDuration,
			Temporary: true,
		}
		if err := s.cut(ctx, video, part, partMB); err != nil {
			_ = os.Remove(part.Path)
			logging.WarnWithContext(s.logger, "part cut failed; keeping earlier parts", "split_cut_failed",
				logging.Int(logging.FieldPart, part.Sequence),
				logging.Int("parts_produced", len(parts)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ffmpeg output and free disk space"),
				logging.String(logging.FieldImpact, "later parts of the video are not transcribed"),
			)
			return parts, services.Wrap(services.ErrSplit, "split", "cut",
				fmt.Sprintf("part %d of %d", part.Sequence, count), err)
		}
		s.logger.Debug("part cut",
			logging.Int(logging.FieldPart, part.Sequence),
			logging.String("path", part.Path),
			logging.Float64("offset_seconds", part.Offset),
		)
		parts = append(parts, part)
	}
	return parts, nil
}

func (s *Splitter) cut(ctx context.Context, video string, part VideoPart, partMB float64) error {
	timeout := s.cutTimeout(partMB)
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(cutCtx, s.ffmpeg, buildCutArgs(video, part)...)
	if err != nil && cutCtx.Err() != nil {
		return fmt.Errorf("%w: %w", err, cutCtx.Err())
	}
	return err
}

func buildCutArgs(video string, part VideoPart) []string {
	return []string{
		"-y", "-nostdin", "-loglevel", "error",
		"-ss", formatSeconds(part.Offset),
		"-i", video,
		"-t", formatSeconds(part.Duration),
		"-c", "copy",
		part.Path,
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

// Cleanup removes every temporary part. Missing files are ignored.
func Cleanup(parts []VideoPart) error {
	var errs []error
	for _, part := range parts {
		if !part.Temporary || part.Path == "" {
			continue
		}
		if err := os.Remove(part.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
