// Package services defines shared utilities consumed by the pipeline and the
// external tool adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, part numbers, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so probe, split,
//     transcription, translation, and mux failures can be classified with
//     errors.Is at the unit and run boundaries.
//
// Adapters for the external engines live in subpackages (whisper, translate).
package services
