// Package llm talks to language model backends (OpenAI-compatible chat
// completions, Ollama and Gemini) and builds the book suggestion provider and
// cover text extractor on top of them.
//
// Provider replies are decoded once, at this boundary, into typed structs.
// Anything that does not fit the expected shape is reported as
// domain.ErrProviderMalformedResponse so callers can retry.
package llm
