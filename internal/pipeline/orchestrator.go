package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subtitler/internal/config"
	"subtitler/internal/fileutil"
	"subtitler/internal/logging"
	"subtitler/internal/media/split"
	"subtitler/internal/services"
	"subtitler/internal/services/whisper"
	"subtitler/internal/staging"
	"subtitler/internal/subtitles"
	"subtitler/internal/textutil"
	"subtitler/internal/transcriptcache"
)

const (
	stageSplit      = "split"
	stageTranscribe = "transcribe"
	stageWrite      = "write"

	// Chunked runs spread per-part progress over the first half, report
	// mergedProgress once parts are joined, then 100 after the write.
	chunkedProgressSpan = 50.0
	mergedProgress      = 75.0
	singleProgressScale = 0.99
)

// ProgressFunc receives overall run progress in percent. It is called inline
// after each unit of work.
type ProgressFunc func(percent float64, message string)

// Transcriber turns one media file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, media, workDir, model string, progress whisper.ProgressFunc) (whisper.Result, error)
}

// Splitter cuts an oversized video into parts inside dir.
type Splitter interface {
	Split(ctx context.Context, video, dir string, thresholdMB float64) ([]split.VideoPart, error)
}

// Cache stores per-part transcription output between runs.
type Cache interface {
	Get(ctx context.Context, key transcriptcache.Key) (transcriptcache.Entry, bool, error)
	Put(ctx context.Context, key transcriptcache.Key, segments []subtitles.Segment, modelUsed string) error
}

// Request describes one subtitle generation run.
type Request struct {
	Video string
	// Model defaults to transcription.model.
	Model string
	// ThresholdMB defaults to split.max_size_mb.
	ThresholdMB float64
	// OutputPath defaults to a unique name inside paths.output_dir.
	OutputPath string
	Progress   ProgressFunc
}

// Result describes a completed run. A run with Failures is still a success
// as long as at least one part produced subtitles.
type Result struct {
	RunID         string
	OutputPath    string
	Document      subtitles.Document
	Model         string
	PartsPlanned  int
	PartsProduced int
	Succeeded     []int
	Failures      []PartFailure
	// SplitErr is set when cutting stopped early and later parts are missing.
	SplitErr  error
	FellBack  bool
	CacheHits int
	Rebased   bool
	Elapsed   time.Duration
}

// Partial reports whether some of the video is missing from the output.
func (r Result) Partial() bool {
	return len(r.Failures) > 0 || r.PartsProduced < r.PartsPlanned
}

// FailedSequences lists the part numbers that produced no subtitles,
// including parts that were never cut.
func (r Result) FailedSequences() []int {
	out := make([]int, 0, len(r.Failures)+r.PartsPlanned-r.PartsProduced)
	for _, failure := range r.Failures {
		out = append(out, failure.Sequence)
	}
	for seq := r.PartsProduced + 1; seq <= r.PartsPlanned; seq++ {
		out = append(out, seq)
	}
	return out
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the transcript cache.
func WithCache(cache Cache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithClock overrides the clock used for output names, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func withCloser(fn func() error) Option {
	return func(o *Orchestrator) {
		o.closers = append(o.closers, fn)
	}
}

// Orchestrator drives size check, split, per-part transcription, merge, and
// output for one video at a time. Runs are sequential; concurrent callers
// each get their own run directory.
type Orchestrator struct {
	cfg         *config.Config
	transcriber Transcriber
	splitter    Splitter
	cache       Cache
	logger      *slog.Logger
	now         func() time.Time
	closers     []func() error
}

// New constructs an orchestrator from explicit collaborators.
func New(cfg *config.Config, transcriber Transcriber, splitter Splitter, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		transcriber: transcriber,
		splitter:    splitter,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close releases resources opened by NewFromConfig.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, fn := range o.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

// Run generates one subtitle file for req.Video.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if o == nil || o.cfg == nil || o.transcriber == nil || o.splitter == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "pipeline", "init", "orchestrator not initialized", nil)
	}
	started := o.now()
	progress := req.Progress
	if progress == nil {
		progress = func(float64, string) {}
	}

	video := strings.TrimSpace(req.Video)
	if video == "" {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "validate", "video path required", nil)
	}
	model := strings.ToLower(strings.TrimSpace(req.Model))
	if model == "" {
		model = o.cfg.Transcription.Model
	}
	if !o.cfg.SupportsModel(model) {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "validate",
			fmt.Sprintf("unsupported model %q (supported: %s)", model, strings.Join(o.cfg.Transcription.Models, ", ")), nil)
	}
	threshold := req.ThresholdMB
	if threshold <= 0 {
		threshold = o.cfg.Split.MaxSizeMB
	}

	sizeMB, err := split.FileSizeMB(video)
	if err != nil {
		return Result{}, err
	}

	run, err := staging.NewRun(o.cfg.Paths.WorkDir, o.logger)
	if err != nil {
		return Result{}, err
	}
	defer run.Close()

	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, o.logger)
	sampler := logging.NewProgressSampler(10)
	report := func(percent float64, message string) {
		if sampler.ShouldLog(percent, "") {
			logger.Info("run progress",
				logging.Float64(logging.FieldProgressPercent, percent),
				logging.String("message", message),
			)
		}
		progress(percent, message)
	}

	result := Result{
		RunID:        run.ID,
		Model:        model,
		PartsPlanned: split.PartCount(sizeMB, threshold),
		Rebased:      o.cfg.Split.RebaseTimestamps,
	}
	logger.Info("subtitle run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("video", video),
		logging.Float64("size_mb", sizeMB),
		logging.Float64("threshold_mb", threshold),
		logging.String("model", model),
		logging.Int(logging.FieldPartCount, result.PartsPlanned),
	)

	var doc subtitles.Document
	if split.NeedsSplit(sizeMB, threshold) {
		doc, err = o.runChunked(ctx, run, video, threshold, model, &result, report)
	} else {
		result.PartsProduced = 1
		doc, err = o.runSingle(ctx, run, video, split.VideoPart{Path: video, Sequence: 1}, model, &result, report)
	}
	if err != nil {
		return result, err
	}

	var output string
	err = runStage(ctx, logger, stageWrite, func(context.Context) error {
		var writeErr error
		output, writeErr = o.writeOutput(run, video, req.OutputPath, doc)
		return writeErr
	})
	if err != nil {
		return result, err
	}

	result.OutputPath = output
	result.Document = doc
	result.Elapsed = o.now().Sub(started)
	report(100, "done")

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output", output),
		logging.Int("blocks", doc.Len()),
		logging.Int("parts_succeeded", len(result.Succeeded)),
		logging.Int("cache_hits", result.CacheHits),
		logging.Duration("elapsed", result.Elapsed),
	}
	if result.Partial() {
		logging.WarnWithContext(logger, "subtitles generated with gaps", "run_partial",
			append(attrs,
				logging.Any("missing_parts", result.FailedSequences()),
				logging.String(logging.FieldErrorHint, "rerun with a larger model timeout or inspect the failed parts"),
				logging.String(logging.FieldImpact, "speech in the missing parts has no subtitles"),
			)...,
		)
	} else {
		logger.Info("subtitles generated", logging.Args(attrs...)...)
	}
	return result, nil
}

// runSingle transcribes one media file and scales its progress to 0..99.
func (o *Orchestrator) runSingle(ctx context.Context, run *staging.Run, source string, part split.VideoPart, model string, result *Result, report ProgressFunc) (subtitles.Document, error) {
	var doc subtitles.Document
	err := runStage(ctx, o.logger, stageTranscribe, func(stageCtx context.Context) error {
		partCtx := services.WithPart(stageCtx, part.Sequence)
		var partErr error
		doc, partErr = o.transcribePart(partCtx, run, source, part, model, result, func(percent float64, message string) {
			report(percent*singleProgressScale, message)
		})
		if partErr != nil {
			result.Failures = append(result.Failures, PartFailure{Sequence: part.Sequence, Offset: part.Offset, Err: partErr})
			return partErr
		}
		result.Succeeded = append(result.Succeeded, part.Sequence)
		return nil
	})
	return doc, err
}

// runChunked splits the video and transcribes each part in order. Failed
// parts are recorded and skipped.
func (o *Orchestrator) runChunked(ctx context.Context, run *staging.Run, video string, threshold float64, model string, result *Result, report ProgressFunc) (subtitles.Document, error) {
	logger := logging.WithContext(ctx, o.logger)

	var parts []split.VideoPart
	defer func() {
		if err := split.Cleanup(parts); err != nil {
			logger.Debug("part cleanup incomplete", logging.Error(err))
		}
	}()

	err := runStage(ctx, o.logger, stageSplit, func(stageCtx context.Context) error {
		var splitErr error
		parts, splitErr = o.splitter.Split(stageCtx, video, run.Path("parts"), threshold)
		if splitErr == nil {
			return nil
		}
		if len(parts) == 0 {
			if errors.Is(splitErr, services.ErrProbe) || errors.Is(splitErr, services.ErrSplit) {
				return splitErr
			}
			return services.Wrap(services.ErrSplit, "pipeline", "split", video, splitErr)
		}
		result.SplitErr = splitErr
		logging.WarnWithContext(logger, "split stopped early; continuing with produced parts", "split_partial",
			logging.Int("parts_produced", len(parts)),
			logging.Int("parts_planned", result.PartsPlanned),
			logging.Error(splitErr),
			logging.String(logging.FieldErrorHint, "check ffmpeg output and free disk space"),
			logging.String(logging.FieldImpact, "the end of the video has no subtitles"),
		)
		return nil
	})
	if err != nil {
		return subtitles.Document{}, err
	}
	result.PartsProduced = len(parts)

	if len(parts) == 1 {
		logger.Info("split produced a single part; using single-part path",
			logging.Args(logging.DecisionAttrs("split_degraded", "single_part", "one part produced")...)...)
		return o.runSingle(ctx, run, video, parts[0], model, result, report)
	}

	docs := make([]subtitles.Document, 0, len(parts))
	for i, part := range parts {
		partCtx := services.WithPart(services.WithStage(ctx, stageTranscribe), part.Sequence)
		partLogger := logging.WithContext(partCtx, o.logger)

		doc, partErr := o.transcribePart(partCtx, run, video, part, model, result, nil)
		if cleanupErr := split.Cleanup([]split.VideoPart{part}); cleanupErr != nil {
			partLogger.Debug("part file removal failed", logging.Error(cleanupErr))
		}
		if partErr != nil {
			result.Failures = append(result.Failures, PartFailure{Sequence: part.Sequence, Offset: part.Offset, Err: partErr})
			logging.WarnWithContext(partLogger, "part transcription failed; skipping", "part_transcription_failed",
				logging.Float64("offset_seconds", part.Offset),
				logging.String("error_kind", services.Kind(partErr)),
				logging.Error(partErr),
				logging.String(logging.FieldErrorHint, "check the whisper launcher output for this part"),
				logging.String(logging.FieldImpact, fmt.Sprintf("part %d missing from output", part.Sequence)),
			)
		} else {
			result.Succeeded = append(result.Succeeded, part.Sequence)
			docs = append(docs, doc)
			partLogger.Debug("part transcribed", logging.Int("blocks", doc.Len()))
		}
		report(chunkedProgressSpan*float64(i+1)/float64(len(parts)),
			fmt.Sprintf("transcribed part %d of %d", part.Sequence, len(parts)))
	}

	if len(docs) == 0 {
		return subtitles.Document{}, &AggregateFailure{Failures: append([]PartFailure(nil), result.Failures...)}
	}

	merged := subtitles.Merge(docs...)
	report(mergedProgress, fmt.Sprintf("merged %d of %d parts", len(docs), len(parts)))
	return merged, nil
}

// transcribePart returns the subtitle document for one part, consulting the
// cache first. Timestamps are rebased onto the source timeline when enabled.
func (o *Orchestrator) transcribePart(ctx context.Context, run *staging.Run, source string, part split.VideoPart, model string, result *Result, progress whisper.ProgressFunc) (subtitles.Document, error) {
	logger := logging.WithContext(ctx, o.logger)

	var (
		key    transcriptcache.Key
		keyOK  bool
		cached []subtitles.Segment
		hit    bool
	)
	if o.cache != nil {
		var err error
		key, err = transcriptcache.KeyFor(source, part.Offset, part.Duration, model, o.cfg.Transcription.Language)
		keyOK = err == nil
		if keyOK {
			entry, ok, getErr := o.cache.Get(ctx, key)
			if getErr != nil {
				logger.Debug("transcript cache lookup failed", logging.Error(getErr))
			} else if ok {
				cached, hit = entry.Segments, true
				if entry.ModelUsed != model {
					result.FellBack = true
				}
			}
		}
	}

	segments := cached
	if hit {
		result.CacheHits++
		logger.Debug("transcript cache hit", logging.Int("segments", len(segments)))
		if progress != nil {
			progress(95, "transcript loaded from cache")
		}
	} else {
		workDir, err := run.Subdir(fmt.Sprintf("part_%03d", part.Sequence))
		if err != nil {
			return subtitles.Document{}, services.Wrap(services.ErrTranscription, "pipeline", "prepare part", workDir, err)
		}
		defer os.RemoveAll(workDir)

		res, err := o.transcriber.Transcribe(ctx, part.Path, workDir, model, progress)
		if err != nil {
			if !errors.Is(err, services.ErrTranscription) {
				err = services.Wrap(services.ErrTranscription, "pipeline", "transcribe", part.Path, err)
			}
			return subtitles.Document{}, err
		}
		segments = res.Segments
		if res.FellBack {
			result.FellBack = true
		}
		if o.cache != nil && keyOK {
			if putErr := o.cache.Put(ctx, key, segments, res.Model); putErr != nil {
				logger.Debug("transcript cache write failed", logging.Error(putErr))
			}
		}
	}

	doc := subtitles.FromSegments(segments)
	if o.cfg.Split.RebaseTimestamps && part.Offset > 0 {
		doc = subtitles.Shift(doc, part.Offset)
	}
	return doc, nil
}

// writeOutput renders doc inside the run directory and moves it into place.
func (o *Orchestrator) writeOutput(run *staging.Run, video, requested string, doc subtitles.Document) (string, error) {
	output := strings.TrimSpace(requested)
	if output == "" {
		dir := strings.TrimSpace(o.cfg.Paths.OutputDir)
		if dir == "" {
			dir = filepath.Dir(video)
		}
		stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
		output = filepath.Join(dir, textutil.UniqueName(stem+".srt", "subtitles", o.now()))
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "pipeline", "write output", filepath.Dir(output), err)
	}

	staged := run.Path("merged.srt")
	if err := subtitles.WriteFile(staged, doc); err != nil {
		return "", services.Wrap(services.ErrTransient, "pipeline", "write output", staged, err)
	}
	if err := fileutil.MoveFile(staged, output); err != nil {
		_ = os.Remove(staged)
		return "", services.Wrap(services.ErrTransient, "pipeline", "write output", output, err)
	}
	return output, nil
}
