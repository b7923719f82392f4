package upstream

import (
	"context"
	"fmt"
)

// SandboxClient synthesizes a deterministic reply that embeds the prompt.
// It never touches the network.
type SandboxClient struct{}

func NewSandboxClient() *SandboxClient {
	return &SandboxClient{}
}

func (c *SandboxClient) Complete(ctx context.Context, secret string, req Request) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	return Result{Outcome: OutcomeOK, Choices: []string{SandboxReply(LastContent(req.Messages))}}
}

// SandboxReply is the reply SandboxClient produces for prompt.
func SandboxReply(prompt string) string {
	return fmt.Sprintf("Test content: this is the answer to %s", prompt)
}
