// Package ollama is a small client for the Ollama HTTP API and a vision-model
// label backend built on it.
//
// Only the endpoints the label modality needs are covered: /api/tags for
// discovery, /api/pull for fetching models, and /api/chat with base64 images
// and JSON-schema constrained output. Transient failures are retried with
// exponential backoff.
package ollama
