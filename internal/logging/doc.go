// Package logging assembles the slog loggers used by the CLI, the pipeline, and
// the HTTP server.
//
// It owns the console and JSON handlers, level parsing, and the optional JSON
// copy written to the log directory. Context helpers tag lines with run IDs,
// stages, and part numbers so a chunked run can be followed part by part.
// NewNop gives tests and optional collaborators a logger that cannot fail.
package logging
