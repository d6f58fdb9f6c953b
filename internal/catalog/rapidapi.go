// Package catalog implements product search against the RapidAPI
// product-search service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/httpclient"
)

const (
	DefaultBaseURL = "https://product-search-api.p.rapidapi.com/"
	DefaultHost    = "product-search-api.p.rapidapi.com"
	DefaultPage    = "1"
	DefaultCountry = "us"

	searchPath = "api/google/shopping"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// Host is sent as x-rapidapi-host. Defaults to the base URL's host.
	Host string
}

// Client searches the catalog. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	apiKey  string
	host    string
	http    *http.Client
}

var _ core.Catalog = (*Client)(nil)

// NewClient builds a Client. hc may be nil.
func NewClient(cfg Config, hc *http.Client) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := httpclient.ParseBaseURL(raw, "catalog")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("catalog api key is required")
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = base.Host
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		host:    host,
		http:    hc,
	}, nil
}

type searchResponse struct {
	Products []json.RawMessage `json:"products"`
}

// product holds the fields the sampler reads. Everything else stays in the
// raw record.
type product struct {
	ProductID looseString `json:"product_id"`
	ID        looseString `json:"id"`
	Title     looseString `json:"title"`
	Link      looseString `json:"link"`
	ImageURL  looseString `json:"imageUrl"`
}

// looseString accepts a JSON string or number. Any other value decodes to "".
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		*s = looseString(num.String())
		return nil
	}
	*s = ""
	return nil
}

func (s looseString) trimmed() string { return strings.TrimSpace(string(s)) }

// Search posts the query as a form and returns the products in provider rank order.
func (c *Client) Search(ctx context.Context, params core.SearchParams) ([]core.Item, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	page := strings.TrimSpace(params.Page)
	if page == "" {
		page = DefaultPage
	}
	country := strings.TrimSpace(params.Country)
	if country == "" {
		country = DefaultCountry
	}

	form := url.Values{}
	form.Set("query", query)
	form.Set("page", page)
	form.Set("country", country)

	u := httpclient.Resolve(c.baseURL, searchPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	b, err := httpclient.Do(ctx, c.http, req, "catalogSearch")
	if err != nil {
		return nil, err
	}
	return ParseProducts(b)
}

// ParseProducts decodes a search response body. Records that are not JSON
// objects are skipped; numeric ids are kept in their decimal form. Rank is
// the position in the provider list.
func ParseProducts(body []byte) ([]core.Item, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse catalog search response: %w", err)
	}

	items := make([]core.Item, 0, len(resp.Products))
	for _, raw := range resp.Products {
		var p product
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		id := p.ProductID.trimmed()
		if id == "" {
			id = p.ID.trimmed()
		}
		items = append(items, core.Item{
			Rank:      len(items),
			ID:        id,
			Title:     p.Title.trimmed(),
			ImageRef:  p.ImageURL.trimmed(),
			DetailRef: p.Link.trimmed(),
			Raw:       raw,
		})
	}
	return items, nil
}
