package upstream

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures OpenAIClient. Empty BaseURL keeps the public
// endpoint.
type OpenAIConfig struct {
	BaseURL      string
	Organization string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// OpenAIClient calls an OpenAI-compatible chat completion endpoint. A fresh
// go-openai client is built per call because the secret changes per lease.
type OpenAIClient struct {
	cfg OpenAIConfig
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &OpenAIClient{cfg: cfg}
}

func (c *OpenAIClient) Complete(ctx context.Context, secret string, req Request) Result {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	oc := openai.DefaultConfig(secret)
	if c.cfg.BaseURL != "" {
		oc.BaseURL = c.cfg.BaseURL
	}
	oc.OrgID = c.cfg.Organization
	oc.HTTPClient = c.cfg.HTTPClient
	client := openai.NewClientWithConfig(oc)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: wireTemperature(req.Temperature),
	})
	if err != nil {
		if isRateLimited(err) {
			return Result{Outcome: OutcomeRateLimited, Err: err}
		}
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	choices := make([]string, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		choices = append(choices, ch.Message.Content)
	}

	return Result{Outcome: OutcomeOK, Choices: choices}
}

// wireTemperature keeps an explicit zero on the wire. go-openai drops a zero
// temperature as omitempty, which the endpoint reads as its own default.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
