// Package llm provides the text-generation providers the relay can draft
// with. One prompt in, one completion out: no streaming, no multi-turn
// context, no retries.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds every generation call.
const TimeoutLLMCall = 60 * time.Second

// Domain errors.
var (
	ErrEmptyCompletion = errors.New("generation returned empty content")
)

// Provider is the interface all text-generation providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Generate sends a single completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is one generation request.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is one generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
