// Package config loads, normalizes, and validates subtitler configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads an optional .env file, and honours environment fallbacks
// such as OPENROUTER_API_KEY. The Config type carries every knob the CLI, the
// pipeline, and the HTTP server need.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical enum values, and clear validation errors.
package config
