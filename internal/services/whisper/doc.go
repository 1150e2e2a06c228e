// Package whisper transcribes media files with the openai-whisper CLI.
//
// This package handles:
//   - Audio extraction to mono 16 kHz WAV with ffmpeg
//   - Whisper invocation through uvx with a bounded timeout
//   - A single retry with a smaller model when the requested one fails
//   - Decoding whisper's JSON output into timed segments
//
// Progress is reported coarsely: 5 on start, 15 once audio is extracted,
// 20 when the model is invoked, and 95 once segments are loaded.
package whisper
