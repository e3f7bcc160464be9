// Package textgen implements the text generation collaborator over an
// OpenAI-compatible chat completions endpoint (a local Ollama instance by
// default). The core uses it for query rewriting, hypothetical-answer
// generation, and final answer synthesis.
package textgen
