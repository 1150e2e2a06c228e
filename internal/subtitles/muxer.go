package subtitles

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	langpkg "subtitler/internal/language"
	"subtitler/internal/logging"
	"subtitler/internal/services"
)

// Mux modes.
const (
	ModeBurn = "burn"
	ModeSoft = "soft"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// MuxRequest describes one subtitle/video combination.
type MuxRequest struct {
	VideoPath    string
	SubtitlePath string
	// OutputPath defaults to "<video>_subtitled<ext>" next to the video.
	OutputPath string
	Mode       string
	// Language tags the soft subtitle track (ISO 639-1 or 639-2).
	Language string
}

// MuxResult reports the outcome of a mux.
type MuxResult struct {
	OutputPath string
	Mode       string
	Elapsed    time.Duration
}

// Muxer combines SRT files with video using ffmpeg.
type Muxer struct {
	logger  *slog.Logger
	run     commandRunner
	ffmpeg  string
	timeout time.Duration
}

// NewMuxer constructs a muxer. A zero timeout means no deadline beyond ctx.
func NewMuxer(ffmpegBinary string, timeout time.Duration, logger *slog.Logger) *Muxer {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Muxer{
		logger:  logging.NewComponentLogger(logger, "muxer"),
		run:     defaultCommandRunner,
		ffmpeg:  ffmpegBinary,
		timeout: timeout,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (m *Muxer) WithCommandRunner(r commandRunner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mux writes the combined video. Output goes to a temporary file beside the
// destination and is renamed on success; on failure nothing is left behind.
func (m *Muxer) Mux(ctx context.Context, req MuxRequest) (MuxResult, error) {
	if m == nil {
		return MuxResult{}, services.Wrap(services.ErrConfiguration, "mux", "init", "muxer not initialized", nil)
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = ModeBurn
	}
	if mode != ModeBurn && mode != ModeSoft {
		return MuxResult{}, services.Wrap(services.ErrValidation, "mux", "validate", fmt.Sprintf("unsupported mode %q", req.Mode), nil)
	}
	if strings.TrimSpace(req.VideoPath) == "" || strings.TrimSpace(req.SubtitlePath) == "" {
		return MuxResult{}, services.Wrap(services.ErrValidation, "mux", "validate", "video and subtitle paths are required", nil)
	}
	for _, path := range []string{req.VideoPath, req.SubtitlePath} {
		if _, err := os.Stat(path); err != nil {
			return MuxResult{}, services.Wrap(services.ErrNotFound, "mux", "validate", fmt.Sprintf("input %q not found", path), err)
		}
	}

	output := strings.TrimSpace(req.OutputPath)
	if output == "" {
		output = DefaultMuxOutputPath(req.VideoPath)
	}
	tmpPath := filepath.Join(filepath.Dir(output), ".mux-"+filepath.Base(output))

	var args []string
	if mode == ModeBurn {
		args = buildBurnArgs(req.VideoPath, req.SubtitlePath, tmpPath)
	} else {
		args = buildSoftArgs(req.VideoPath, req.SubtitlePath, tmpPath, req.Language)
	}

	m.logger.Debug("executing ffmpeg mux",
		logging.String("mode", mode),
		logging.String("video_path", req.VideoPath),
		logging.String("subtitle_path", req.SubtitlePath),
	)

	runCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	started := time.Now()
	if err := m.run(runCtx, m.ffmpeg, args...); err != nil {
		_ = os.Remove(tmpPath)
		if runCtx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, runCtx.Err())
		}
		return MuxResult{}, services.Wrap(services.ErrMux, "mux", mode, "ffmpeg failed", err)
	}
	if info, err := os.Stat(tmpPath); err != nil || info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return MuxResult{}, services.Wrap(services.ErrMux, "mux", mode, "ffmpeg did not produce output", err)
	}
	if err := os.Rename(tmpPath, output); err != nil {
		_ = os.Remove(tmpPath)
		return MuxResult{}, services.Wrap(services.ErrMux, "mux", mode, "finalize output", err)
	}

	elapsed := time.Since(started)
	m.logger.Info("subtitles muxed",
		logging.String(logging.FieldEventType, "subtitle_mux_complete"),
		logging.String("mode", mode),
		logging.String("output_path", output),
		logging.Duration("elapsed", elapsed),
	)
	return MuxResult{OutputPath: output, Mode: mode, Elapsed: elapsed}, nil
}

// DefaultMuxOutputPath derives "<dir>/<name>_subtitled<ext>" from a video path.
func DefaultMuxOutputPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	if ext == "" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(filepath.Dir(videoPath), base+"_subtitled"+ext)
}

func buildBurnArgs(video, subtitle, output string) []string {
	return []string{
		"-y", "-nostdin", "-loglevel", "error",
		"-i", video,
		"-vf", "subtitles=" + escapeFilterPath(subtitle),
		"-c:a", "copy",
		output,
	}
}

func buildSoftArgs(video, subtitle, output, language string) []string {
	args := []string{
		"-y", "-nostdin", "-loglevel", "error",
		"-i", video,
		"-i", subtitle,
		"-map", "0:v", "-map", "0:a?", "-map", "1:0",
		"-c:v", "copy", "-c:a", "copy",
		"-c:s", softSubtitleCodec(output),
	}
	if lang := strings.TrimSpace(language); lang != "" {
		args = append(args, "-metadata:s:s:0", "language="+langpkg.ToISO3(lang))
	}
	return append(args, output)
}

// softSubtitleCodec picks a subtitle codec the output container accepts.
func softSubtitleCodec(output string) string {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".m4v", ".mov":
		return "mov_text"
	default:
		return "srt"
	}
}

// escapeFilterPath prepares a file path for use as the subtitles filter
// argument. ffmpeg parses filter graphs in two passes: the option value
// escapes \ ' and :, and the graph escapes \ ' , ; [ and ]. Paths containing
// whitespace are single-quoted at the graph level instead.
func escapeFilterPath(path string) string {
	value := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(path)
	if strings.ContainsAny(path, " \t") && !strings.Contains(path, "'") {
		return "'" + value + "'"
	}
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `,`, `\,`, `;`, `\;`, `[`, `\[`, `]`, `\]`).Replace(value)
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
