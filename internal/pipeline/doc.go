// Package pipeline turns a video into one subtitle file and translates
// subtitle files.
//
// Videos above the configured size threshold are cut into equal-duration
// parts, each part is transcribed on its own, and the per-part subtitles are
// merged into a single document numbered 1..N. A part that fails is recorded
// and skipped; the run only fails when no part succeeds. Every temporary part
// and intermediate file lives in a run directory that is removed before Run
// returns.
//
// The translation pass replaces block text one block at a time. A block the
// translator cannot handle keeps its original text.
package pipeline
