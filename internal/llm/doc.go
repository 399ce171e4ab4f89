// Package llm implements the LLM analyzer (§4.6): builds PII-free batched
// classification requests for signatures the rule classifier left
// Unknown, sends them through an OpenAI-compatible chat-completions
// endpoint guarded by a token-bucket spend budget, validates the response
// against the taxonomy's JSON Schema, and drives the five-branch
// active/analyzed/retry/needs_review/skipped state machine.
package llm
