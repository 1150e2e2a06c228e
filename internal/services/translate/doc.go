// Package translate provides the per-line translation providers.
//
// Two providers implement Translator:
//   - Google: the keyless public translate endpoint
//   - LLM: an OpenAI-compatible chat completion model
//
// Both bound each request with a timeout and retry transient HTTP failures.
// Every failure is tagged with services.ErrTranslation; callers keep the
// original text for that line.
package translate
