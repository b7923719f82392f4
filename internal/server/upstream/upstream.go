// Package upstream talks to the chat-completion service behind the gateway.
//
// Failures are not returned as errors but folded into a typed Result, so the
// caller handles rate limiting, generic failure and success in one switch.
package upstream

import "context"

// Message is one entry of the chat transcript sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single completion call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Outcome classifies a completion attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Result is the typed outcome of Client.Complete. Choices holds the
// candidate replies when Outcome is OutcomeOK; Err carries the cause
// otherwise and is meant for logs only.
type Result struct {
	Outcome Outcome
	Choices []string
	Err     error
}

// Client performs completions with the given upstream secret.
type Client interface {
	Complete(ctx context.Context, secret string, req Request) Result
}

// LastContent returns the content of the final message, or "" for an
// empty transcript.
func LastContent(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}
