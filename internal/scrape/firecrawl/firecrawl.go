// Package firecrawl scrapes product pages through the Firecrawl scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/httpclient"
)

const DefaultBaseURL = "https://api.firecrawl.dev/"

type Config struct {
	BaseURL string
	APIKey  string
}

// Scraper returns the main content of a page as markdown, keeping img tags.
type Scraper struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

var _ core.Scraper = (*Scraper)(nil)

func New(cfg Config, hc *http.Client) (*Scraper, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := httpclient.ParseBaseURL(raw, "firecrawl")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("firecrawl api key is required")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Scraper{baseURL: base, apiKey: strings.TrimSpace(cfg.APIKey), http: hc}, nil
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	IncludeTags     []string `json:"includeTags,omitempty"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

func (s *Scraper) Scrape(ctx context.Context, detailRef string) (string, error) {
	detailRef = strings.TrimSpace(detailRef)
	if detailRef == "" {
		return "", fmt.Errorf("detail url is required")
	}

	b, err := json.Marshal(scrapeRequest{
		URL:             detailRef,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		IncludeTags:     []string{"img"},
	})
	if err != nil {
		return "", err
	}

	u := httpclient.Resolve(s.baseURL, "v1/scrape")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	rb, err := httpclient.Do(ctx, s.http, req, "firecrawlScrape")
	if err != nil {
		return "", err
	}

	var out scrapeResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return "", fmt.Errorf("parse firecrawl scrape response: %w", err)
	}
	if !out.Success {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return "", fmt.Errorf("firecrawl: %s", msg)
	}
	return out.Data.Markdown, nil
}
