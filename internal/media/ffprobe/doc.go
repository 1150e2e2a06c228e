// Package ffprobe provides a typed wrapper around ffprobe.
//
// Key types:
//   - Prober: runs ffprobe with a bounded deadline and an injectable runner
//   - Result: parsed ffprobe output containing streams and format metadata
//
// Every failure is tagged with services.ErrProbe so callers can treat probe
// problems as fatal for a run.
package ffprobe
