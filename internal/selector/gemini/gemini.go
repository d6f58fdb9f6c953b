// Package gemini selects product images with Gemini, constraining the reply
// to a single image_url field through a response schema.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/selector"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Selector struct {
	client *genai.Client
	model  string
}

var _ core.ImageSelector = (*Selector)(nil)

// New builds a Selector. hc may be nil.
func New(ctx context.Context, cfg Config, hc *http.Client) (*Selector, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Selector{client: client, model: model}, nil
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"image_url": {
			Type:        genai.TypeString,
			Description: `Absolute URL of the main product image, or "none".`,
		},
	},
	Required: []string{"image_url"},
}

func (s *Selector) SelectImage(ctx context.Context, req core.SelectRequest) (string, error) {
	temp := float32(0)
	resp, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		genai.Text(selector.UserPrompt(req)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(selector.SystemPrompt, genai.RoleUser),
			CandidateCount:    1,
			Temperature:       &temp,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    outputSchema,
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}
	return selector.ParseImageURL(resp.Text())
}

func classifyErr(err error) error {
	// Wrap transient failures so worker.Call retries them with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code/100 == 5 {
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
