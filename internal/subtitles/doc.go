// Package subtitles models SRT documents and the operations the pipeline runs
// on them.
//
// Parse and Render convert between SRT text and Document values. Parsing is
// lenient: malformed blocks are dropped rather than failing the whole file.
// FromSegments maps recognizer segments to blocks one to one, except that
// segments with empty text or a non-positive duration are skipped, so a
// document may hold fewer blocks than there were segments.
// Merge joins per-part documents into one contiguously numbered document, and
// Shift moves a document along the timeline. The Muxer burns a subtitle file
// into a video or adds it as a soft track using ffmpeg.
package subtitles
