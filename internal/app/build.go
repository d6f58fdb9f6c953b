package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/catalog"
	"github.com/shpitdev/product-image-sampler/internal/config"
	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/enrich"
	"github.com/shpitdev/product-image-sampler/internal/httpclient"
	"github.com/shpitdev/product-image-sampler/internal/metrics"
	"github.com/shpitdev/product-image-sampler/internal/sampler"
	"github.com/shpitdev/product-image-sampler/internal/scrape/firecrawl"
	"github.com/shpitdev/product-image-sampler/internal/scrape/htmlpage"
	"github.com/shpitdev/product-image-sampler/internal/selector/gemini"
	"github.com/shpitdev/product-image-sampler/internal/selector/llama"
)

// OptionsFromConfig maps the loaded configuration onto service options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Sampler: sampler.Config{
			TargetQualityCount: cfg.Sampler.TargetQualityCount,
			MaxAttempts:        cfg.Sampler.MaxAttempts,
			AdmissionThreshold: sampler.AdmitAt(cfg.Sampler.AdmissionThreshold),
		},
		MaxAttemptsLimit: cfg.Sampler.MaxAttemptsLimit,
		Enrich: enrich.Options{
			ScrapeTimeout:     cfg.Enrich.ScrapeTimeout,
			SelectTimeout:     cfg.Enrich.SelectTimeout,
			MaxRetries:        cfg.Enrich.MaxRetries,
			BackoffInitial:    cfg.Enrich.BackoffInitial,
			BackoffMax:        cfg.Enrich.BackoffMax,
			BackoffJitterFrac: cfg.Enrich.BackoffJitterFrac,
		},
		RateLimitRPS:   cfg.Enrich.RateLimitRPS,
		CatalogTimeout: cfg.Catalog.Timeout,
		DefaultPage:    cfg.Catalog.DefaultPage,
		DefaultCountry: cfg.Catalog.DefaultCountry,
	}
}

// NewFromConfig builds the production collaborators selected by cfg and
// returns a ready Service. m may be nil.
func NewFromConfig(ctx context.Context, cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Service, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	// Per-call deadlines come from the worker options; the client timeout
	// only guards against a stuck connection.
	hc, err := httpclient.New(cfg.CAPath, 0)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.NewClient(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		APIKey:  cfg.Catalog.APIKey,
		Host:    cfg.Catalog.Host,
	}, hc)
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}

	var scraper core.Scraper
	switch cfg.Scrape.Backend {
	case config.ScrapeHTML:
		scraper = htmlpage.New(hc, cfg.Scrape.UserAgent)
	default:
		fc, err := firecrawl.New(firecrawl.Config{
			BaseURL: cfg.Scrape.Firecrawl.BaseURL,
			APIKey:  cfg.Scrape.Firecrawl.APIKey,
		}, hc)
		if err != nil {
			return nil, fmt.Errorf("firecrawl client: %w", err)
		}
		scraper = fc
	}

	var selector core.ImageSelector
	switch cfg.Selector.Backend {
	case config.SelectorGemini:
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Selector.Gemini.APIKey,
			Model:   cfg.Selector.Gemini.Model,
			BaseURL: cfg.Selector.Gemini.BaseURL,
		}, hc)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		selector = g
	default:
		l, err := llama.New(llama.Config{
			APIKey:  cfg.Selector.Llama.APIKey,
			Model:   cfg.Selector.Llama.Model,
			BaseURL: cfg.Selector.Llama.BaseURL,
		}, hc)
		if err != nil {
			return nil, fmt.Errorf("llama client: %w", err)
		}
		selector = l
	}

	logger.Info().
		Str("scrape_backend", cfg.Scrape.Backend).
		Str("selector_backend", cfg.Selector.Backend).
		Int("target_quality_count", cfg.Sampler.TargetQualityCount).
		Int("max_attempts", cfg.Sampler.MaxAttempts).
		Float64("rate_limit_rps", cfg.Enrich.RateLimitRPS).
		Msg("service configured")

	return NewService(Deps{
		Catalog:  cat,
		Scraper:  scraper,
		Selector: selector,
		Logger:   logger,
		Metrics:  m,
	}, OptionsFromConfig(cfg))
}
