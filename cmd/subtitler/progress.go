package main

import (
	"fmt"
	"io"
	"math"

	"github.com/schollz/progressbar/v3"

	"subtitler/internal/logging"
)

// progressReporter renders pipeline progress as a bar on terminals and as
// sampled "[ NN%] message" lines everywhere else.
type progressReporter struct {
	out     io.Writer
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
}

func newProgressReporter(out io.Writer, description string, quiet bool) *progressReporter {
	r := &progressReporter{out: out}
	switch {
	case quiet:
	case isTerminal(out):
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	default:
		r.sampler = logging.NewProgressSampler(10)
	}
	return r
}

// Update matches pipeline.ProgressFunc.
func (r *progressReporter) Update(percent float64, message string) {
	if r == nil {
		return
	}
	percent = math.Max(0, math.Min(100, percent))
	switch {
	case r.bar != nil:
		r.bar.Describe(message)
		_ = r.bar.Set(int(math.Round(percent)))
	case r.sampler != nil:
		if r.sampler.ShouldLog(percent, "") {
			fmt.Fprintf(r.out, "[%3.0f%%] %s\n", percent, message)
		}
	}
}

// Finish completes and clears the bar.
func (r *progressReporter) Finish() {
	if r == nil || r.bar == nil {
		return
	}
	_ = r.bar.Finish()
}
