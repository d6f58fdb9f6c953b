// Package llama selects product images with the Llama API through its
// OpenAI-compatible chat completions endpoint.
package llama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/selector"
)

const (
	DefaultBaseURL = "https://api.llama.com/compat/v1/"
	DefaultModel   = "Llama-3.3-8B-Instruct"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Selector struct {
	client openai.Client
	model  shared.ChatModel
}

var _ core.ImageSelector = (*Selector)(nil)

// New builds a Selector. hc may be nil. Retries are left to the caller.
func New(cfg Config, hc *http.Client) (*Selector, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLAMA_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &Selector{
		client: openai.NewClient(opts...),
		model:  shared.ChatModel(model),
	}, nil
}

func (s *Selector) SelectImage(ctx context.Context, req core.SelectRequest) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(selector.SystemPrompt),
			openai.UserMessage(selector.UserPrompt(req)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", classifyErr(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", selector.ErrMalformedReply)
	}
	return selector.ParseImageURL(resp.Choices[0].Message.Content)
}

func classifyErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
