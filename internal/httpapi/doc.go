// Package httpapi serves subtitle generation, translation and muxing over
// HTTP using chi.
//
// Routes:
//
//	GET  /healthz         liveness
//	GET  /metrics         Prometheus scrape
//	GET  /api/languages   supported translation targets
//	POST /api/subtitles   multipart "video" (+ "model") -> SRT
//	POST /api/translate   multipart "subtitle" + "lang" -> SRT
//	POST /api/burn        multipart "video" + "subtitle" (+ "mode", "lang") -> video
//
// Partial results are reported in the X-Subtitler-Failed-Parts and
// X-Subtitler-Untranslated-Blocks response headers.
package httpapi
