package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const filterCheckTimeout = 10 * time.Second

type outputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CheckSubtitlesFilter reports whether ffmpeg was built with the subtitles
// filter (libass), which burn-in muxing needs.
func CheckSubtitlesFilter(ctx context.Context, ffmpeg string) Status {
	return checkSubtitlesFilter(ctx, ffmpeg, defaultOutputRunner)
}

func checkSubtitlesFilter(ctx context.Context, ffmpeg string, run outputRunner) Status {
	ffmpeg = strings.TrimSpace(ffmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	result := Status{
		Name:        "subtitles filter",
		Command:     ffmpeg,
		Description: "Required for burn mode (libass)",
		Optional:    true,
	}

	checkCtx, cancel := context.WithTimeout(ctx, filterCheckTimeout)
	defer cancel()
	output, err := run(checkCtx, ffmpeg, "-hide_banner", "-filters")
	if err != nil {
		result.Detail = fmt.Sprintf("list filters: %v", err)
		return result
	}
	if hasFilter(output, "subtitles") {
		result.Available = true
		return result
	}
	result.Detail = "ffmpeg built without libass; use mux.mode = \"soft\""
	return result
}

// hasFilter scans `ffmpeg -filters` output, whose rows look like
// " ... subtitles         V->V       Render text subtitles ...".
func hasFilter(output []byte, name string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
