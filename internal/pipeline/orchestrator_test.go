package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"subtitler/internal/config"
	"subtitler/internal/logging"
	"subtitler/internal/media/split"
	"subtitler/internal/pipeline"
	"subtitler/internal/services"
	"subtitler/internal/services/whisper"
	"subtitler/internal/subtitles"
	"subtitler/internal/testsupport"
	"subtitler/internal/transcriptcache"
)

type fakeSplitter struct {
	count int
	keep  int
	err   error
	total float64
	calls int
}

func (f *fakeSplitter) Split(_ context.Context, _ string, dir string, _ float64) ([]split.VideoPart, error) {
	f.calls++
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	n := f.count
	if f.err != nil {
		n = f.keep
	}
	partDuration := f.total / float64(f.count)
	parts := make([]split.VideoPart, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("part_%03d.mp4", i+1))
		if err := os.WriteFile(path, []byte("part"), 0o644); err != nil {
			return parts, err
		}
		parts = append(parts, split.VideoPart{
			Path:      path,
			Sequence:  i + 1,
			Offset:    float64(i) * partDuration,
			Duration:  partDuration,
			Temporary: true,
		})
	}
	return parts, f.err
}

type fakeTranscriber struct {
	segments map[string][]subtitles.Segment
	failures map[string]error
	calls    []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, media, workDir, model string, progress whisper.ProgressFunc) (whisper.Result, error) {
	name := filepath.Base(media)
	f.calls = append(f.calls, name)
	if progress != nil {
		progress(50, "halfway")
	}
	if err := os.WriteFile(filepath.Join(workDir, whisper.AudioFileName), []byte("pcm"), 0o644); err != nil {
		return whisper.Result{}, err
	}
	if err := f.failures[name]; err != nil {
		return whisper.Result{}, err
	}
	return whisper.Result{Segments: f.segments[name], Model: model}, nil
}

type progressRecorder struct {
	values []float64
}

func (p *progressRecorder) record(percent float64, _ string) {
	p.values = append(p.values, percent)
}

func makeSegments(n int, label string) []subtitles.Segment {
	out := make([]subtitles.Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, subtitles.Segment{
			Start: float64(i * 2),
			End:   float64(i*2 + 1),
			Text:  fmt.Sprintf("%s line %d", label, i+1),
		})
	}
	return out
}

func writeVideo(t *testing.T, cfg *config.Config, mb float64) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "input", "lecture.mp4")
	testsupport.WriteMB(t, path, mb)
	return path
}

func assertWorkDirEmpty(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.WorkDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("expected empty work dir, found %v", names)
	}
}

func assertContiguous(t *testing.T, doc subtitles.Document) {
	t.Helper()
	for i, block := range doc.Blocks {
		if block.Index != i+1 {
			t.Fatalf("block %d has index %d", i, block.Index)
		}
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func threePartSetup(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string, *fakeSplitter, *fakeTranscriber) {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithSplitThreshold(1)}, opts...)...)
	video := writeVideo(t, cfg, 2.5)
	splitter := &fakeSplitter{count: 3, total: 30}
	transcriber := &fakeTranscriber{
		segments: map[string][]subtitles.Segment{
			"part_001.mp4": makeSegments(5, "one"),
			"part_002.mp4": makeSegments(3, "two"),
			"part_003.mp4": makeSegments(4, "three"),
		},
		failures: map[string]error{},
	}
	return cfg, video, splitter, transcriber
}

func TestRunSingleFileSkipsSplit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := writeVideo(t, cfg, 0.01)
	splitter := &fakeSplitter{count: 3, total: 30}
	transcriber := &fakeTranscriber{segments: map[string][]subtitles.Segment{"lecture.mp4": makeSegments(3, "solo")}}
	progress := &progressRecorder{}

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video, Progress: progress.record})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if splitter.calls != 0 {
		t.Fatalf("small video must not be split, got %d split calls", splitter.calls)
	}
	if result.PartsPlanned != 1 || result.PartsProduced != 1 || result.Partial() {
		t.Fatalf("unexpected part accounting %+v", result)
	}
	if result.Model != cfg.Transcription.Model {
		t.Fatalf("expected default model, got %q", result.Model)
	}
	doc, err := subtitles.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if doc.Len() != 3 || doc.Blocks[0].Text != "solo line 1" {
		t.Fatalf("unexpected output %+v", doc)
	}
	if filepath.Dir(result.OutputPath) != cfg.Paths.OutputDir || filepath.Ext(result.OutputPath) != ".srt" {
		t.Fatalf("unexpected output path %s", result.OutputPath)
	}

	last := progress.values[len(progress.values)-1]
	if last != 100 {
		t.Fatalf("expected final progress 100, got %v", progress.values)
	}
	sawScaled := false
	for _, v := range progress.values[:len(progress.values)-1] {
		if v > 99 {
			t.Fatalf("progress before completion must stay below 100: %v", progress.values)
		}
		if approx(v, 49.5) {
			sawScaled = true
		}
	}
	if !sawScaled {
		t.Fatalf("expected transcriber progress scaled by 0.99, got %v", progress.values)
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunChunkedPartialFailureKeepsOtherParts(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	transcriber.failures["part_002.mp4"] = errors.New("whisper crashed")
	progress := &progressRecorder{}

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video, Progress: progress.record})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.PartsPlanned != 3 || result.PartsProduced != 3 {
		t.Fatalf("unexpected part accounting %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Sequence != 2 {
		t.Fatalf("expected part 2 failure, got %+v", result.Failures)
	}
	if !errors.Is(result.Failures[0], services.ErrTranscription) {
		t.Fatalf("part failure should carry ErrTranscription: %v", result.Failures[0])
	}
	if fmt.Sprint(result.Succeeded) != "[1 3]" || !result.Partial() {
		t.Fatalf("unexpected succeeded parts %v", result.Succeeded)
	}

	doc, err := subtitles.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if doc.Len() != 9 {
		t.Fatalf("expected 9 merged blocks, got %d", doc.Len())
	}
	assertContiguous(t, doc)
	if doc.Blocks[5].Text != "three line 1" {
		t.Fatalf("expected part 3 after part 1, got %q", doc.Blocks[5].Text)
	}
	if !approx(doc.Blocks[5].Start, 20) {
		t.Fatalf("expected part 3 rebased to 20s, got %v", doc.Blocks[5].Start)
	}

	want := []float64{50.0 / 3, 100.0 / 3, 50, 75, 100}
	if len(progress.values) != len(want) {
		t.Fatalf("unexpected progress %v", progress.values)
	}
	for i := range want {
		if !approx(progress.values[i], want[i]) {
			t.Fatalf("progress[%d] = %v, want %v", i, progress.values[i], want[i])
		}
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunChunkedWithoutRebaseKeepsPartTimes(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	cfg.Split.RebaseTimestamps = false

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Rebased {
		t.Fatal("result should report rebasing disabled")
	}
	if result.Document.Len() != 12 {
		t.Fatalf("expected 12 blocks, got %d", result.Document.Len())
	}
	assertContiguous(t, result.Document)
	if result.Document.Blocks[5].Start != 0 {
		t.Fatalf("part 2 should restart near zero, got %v", result.Document.Blocks[5].Start)
	}
}

func TestRunAllPartsFailReturnsAggregate(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	for _, name := range []string{"part_001.mp4", "part_002.mp4", "part_003.mp4"} {
		transcriber.failures[name] = errors.New("out of memory")
	}

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	_, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if !errors.Is(err, services.ErrAggregate) {
		t.Fatalf("expected ErrAggregate, got %v", err)
	}
	var agg *pipeline.AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("expected AggregateFailure, got %T", err)
	}
	if fmt.Sprint(agg.Sequences()) != "[1 2 3]" {
		t.Fatalf("expected all three parts named, got %v", agg.Sequences())
	}
	if services.Kind(err) != "aggregate" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
	testsupport.AssertNoFiles(t, cfg.Paths.OutputDir, "*.srt")
	assertWorkDirEmpty(t, cfg)
}

func TestRunSplitFailureWithoutPartsFails(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	splitter.err = services.Wrap(services.ErrSplit, "split", "cut", "part 1 of 3", errors.New("exit status 1"))
	splitter.keep = 0

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	_, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if !errors.Is(err, services.ErrSplit) {
		t.Fatalf("expected ErrSplit, got %v", err)
	}
	if len(transcriber.calls) != 0 {
		t.Fatalf("transcriber should not run, got %v", transcriber.calls)
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunProbeFailureIsFatal(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	splitter.err = services.Wrap(services.ErrProbe, "probe", "duration", video, errors.New("invalid data"))

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	_, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if !errors.Is(err, services.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
}

func TestRunSplitStoppedEarlyUsesProducedParts(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	splitter.err = services.Wrap(services.ErrSplit, "split", "cut", "part 3 of 3", errors.New("disk full"))
	splitter.keep = 2

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.SplitErr == nil || result.PartsProduced != 2 || result.PartsPlanned != 3 {
		t.Fatalf("unexpected split accounting %+v", result)
	}
	if fmt.Sprint(result.FailedSequences()) != "[3]" {
		t.Fatalf("expected part 3 reported missing, got %v", result.FailedSequences())
	}
	if result.Document.Len() != 8 {
		t.Fatalf("expected 8 blocks, got %d", result.Document.Len())
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunSplitDegradedToOnePartUsesSinglePath(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t)
	splitter.err = errors.New("cut failed")
	splitter.keep = 1
	progress := &progressRecorder{}

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video, Progress: progress.record})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Document.Len() != 5 || result.PartsProduced != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !approx(progress.values[0], 49.5) {
		t.Fatalf("expected single-part progress scaling, got %v", progress.values)
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunUsesTranscriptCache(t *testing.T) {
	cfg, video, splitter, transcriber := threePartSetup(t, testsupport.WithCache())
	store, err := transcriptcache.Open(cfg.Cache.Path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	orch := pipeline.New(cfg, transcriber, splitter, logging.NewNop(), pipeline.WithCache(store))
	first, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.CacheHits != 0 || len(transcriber.calls) != 3 {
		t.Fatalf("first run should transcribe every part, hits=%d calls=%v", first.CacheHits, transcriber.calls)
	}

	second, err := orch.Run(context.Background(), pipeline.Request{Video: video})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.CacheHits != 3 || len(transcriber.calls) != 3 {
		t.Fatalf("second run should hit the cache, hits=%d calls=%v", second.CacheHits, transcriber.calls)
	}
	if subtitles.Render(second.Document) != subtitles.Render(first.Document) {
		t.Fatal("cached run should render identical subtitles")
	}
	if first.OutputPath == second.OutputPath {
		t.Fatal("each run should write a distinct output file")
	}
	assertWorkDirEmpty(t, cfg)
}

func TestRunHonoursExplicitOutputPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := writeVideo(t, cfg, 0.01)
	transcriber := &fakeTranscriber{segments: map[string][]subtitles.Segment{"lecture.mp4": makeSegments(1, "x")}}
	output := filepath.Join(testsupport.BaseDir(cfg), "custom", "out.srt")

	orch := pipeline.New(cfg, transcriber, &fakeSplitter{}, logging.NewNop())
	result, err := orch.Run(context.Background(), pipeline.Request{Video: video, OutputPath: output})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.OutputPath != output {
		t.Fatalf("expected %s, got %s", output, result.OutputPath)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("stat output: %v", err)
	}
}

func TestRunValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	orch := pipeline.New(cfg, &fakeTranscriber{}, &fakeSplitter{}, logging.NewNop())

	if _, err := orch.Run(context.Background(), pipeline.Request{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty video, got %v", err)
	}
	missing := filepath.Join(testsupport.BaseDir(cfg), "missing.mp4")
	if _, err := orch.Run(context.Background(), pipeline.Request{Video: missing}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	video := writeVideo(t, cfg, 0.01)
	if _, err := orch.Run(context.Background(), pipeline.Request{Video: video, Model: "enormous"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for model, got %v", err)
	}
}
