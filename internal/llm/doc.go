// Package llm defines the provider-neutral types for chatting with a large
// language model: messages, tool specifications, and tool call requests.
// Concrete providers live in subpackages.
package llm
