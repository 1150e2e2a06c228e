// Package llm is a minimal OpenAI-compatible chat completion client
// (OpenRouter by default) backing the llm translation provider.
//
// Complete sends one system/user prompt pair and returns the reply text,
// reading message.content, then delta.content, then the legacy text field.
// Requests retry through httpretry on 408/429/5xx, network timeouts, and
// empty replies. Ping is the `doctor --ping` health check, and DecodeJSON
// tolerates code fences and prose around JSON replies.
package llm
