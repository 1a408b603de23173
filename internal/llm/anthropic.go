// Package llm wraps the natural-language completion service. The rest
// of the pipeline depends only on the Completer interface so tests can
// substitute a fake.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// Completer is the black-box completion service: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Anthropic implements Completer against the Anthropic Messages API or
// a compatible proxy.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates a client. An empty baseURL uses the public API.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 4096,
	}
}

// Complete sends one message exchange and returns the concatenated text
// blocks of the reply. An empty reply is an error.
func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(a.model)),
		MaxTokens: anthropic.F(int64(a.maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		}),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	log.Debug().
		Str("model", a.model).
		Str("stop_reason", string(resp.StopReason)).
		Int("chars", len(text)).
		Msg("completion received")

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion returned empty text")
	}
	return text, nil
}
