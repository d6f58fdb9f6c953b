// Package app wires the catalog, the enrichment step, the sampler and the
// result assembler into one search operation.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shpitdev/product-image-sampler/internal/catalog"
	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/enrich"
	"github.com/shpitdev/product-image-sampler/internal/metrics"
	"github.com/shpitdev/product-image-sampler/internal/results"
	"github.com/shpitdev/product-image-sampler/internal/sampler"
	"github.com/shpitdev/product-image-sampler/internal/util"
	"github.com/shpitdev/product-image-sampler/internal/worker"
)

var (
	// ErrInvalidQuery rejects an empty or missing query.
	ErrInvalidQuery = errors.New("search query is required")
	// ErrInvalidOverride rejects per-request sampler overrides outside the configured bounds.
	ErrInvalidOverride = errors.New("invalid sampler override")
)

// IsInvalidInput reports whether err was caused by the caller's request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrInvalidOverride)
}

// SearchError reports that the catalog search itself failed. No partial
// result accompanies it.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	if e == nil || e.Err == nil {
		return "catalog search failed"
	}
	return "catalog search failed: " + util.RedactSecrets(e.Err.Error())
}

func (e *SearchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Request is one inbound search. Nil overrides fall back to the service defaults.
type Request struct {
	Query   string
	Page    string
	Country string

	TargetQualityCount *int
	MaxAttempts        *int
}

// Deps are the collaborators of a Service. Metrics may be nil.
type Deps struct {
	Catalog  core.Catalog
	Scraper  core.Scraper
	Selector core.ImageSelector
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Options tune a Service.
type Options struct {
	Sampler          sampler.Config
	MaxAttemptsLimit int

	Enrich       enrich.Options
	RateLimitRPS float64

	CatalogTimeout time.Duration
	DefaultPage    string
	DefaultCountry string
}

// Service runs searches. It is safe for concurrent use; every call to Search
// owns its own sampler state.
type Service struct {
	catalog  core.Catalog
	scraper  core.Scraper
	selector core.ImageSelector
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	opts    Options
	limiter *rate.Limiter
}

func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Scraper == nil || deps.Selector == nil {
		return nil, fmt.Errorf("scraper and selector are required")
	}

	opts.Sampler = opts.Sampler.WithDefaults()
	if err := opts.Sampler.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxAttemptsLimit <= 0 {
		opts.MaxAttemptsLimit = max(opts.Sampler.MaxAttempts, 20)
	}
	if opts.Sampler.MaxAttempts > opts.MaxAttemptsLimit {
		return nil, fmt.Errorf("%w: maxAttempts %d exceeds limit %d", sampler.ErrInvalidConfig, opts.Sampler.MaxAttempts, opts.MaxAttemptsLimit)
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = 20 * time.Second
	}
	if strings.TrimSpace(opts.DefaultPage) == "" {
		opts.DefaultPage = catalog.DefaultPage
	}
	if strings.TrimSpace(opts.DefaultCountry) == "" {
		opts.DefaultCountry = catalog.DefaultCountry
	}

	limiter := opts.Enrich.Limiter
	if limiter == nil {
		limiter = worker.NewLimiter(opts.RateLimitRPS)
	}
	opts.Enrich.Limiter = limiter

	return &Service{
		catalog:  deps.Catalog,
		scraper:  deps.Scraper,
		selector: deps.Selector,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		opts:     opts,
		limiter:  limiter,
	}, nil
}

// SamplerConfig resolves the per-request overrides against the service
// defaults and validates the result.
func (s *Service) SamplerConfig(req Request) (sampler.Config, error) {
	cfg := s.opts.Sampler
	if req.TargetQualityCount != nil {
		cfg.TargetQualityCount = *req.TargetQualityCount
	}
	if req.MaxAttempts != nil {
		cfg.MaxAttempts = *req.MaxAttempts
	}
	if cfg.TargetQualityCount < 1 {
		return sampler.Config{}, fmt.Errorf("%w: targetQualityCount must be >= 1", ErrInvalidOverride)
	}
	if cfg.MaxAttempts < cfg.TargetQualityCount {
		return sampler.Config{}, fmt.Errorf("%w: maxAttempts must be >= targetQualityCount", ErrInvalidOverride)
	}
	if cfg.MaxAttempts > s.opts.MaxAttemptsLimit {
		return sampler.Config{}, fmt.Errorf("%w: maxAttempts must be <= %d", ErrInvalidOverride, s.opts.MaxAttemptsLimit)
	}
	return cfg, nil
}

// Search validates req, fetches the candidates, samples them and assembles
// the response. The only errors returned are invalid input, a *SearchError,
// or the context's error.
func (s *Service) Search(ctx context.Context, req Request) (resp results.Response, err error) {
	started := time.Now()
	requestID := uuid.NewString()
	query := strings.TrimSpace(req.Query)
	log := s.logger.With().Str("request_id", requestID).Str("query", query).Logger()

	defer func() {
		if s.metrics == nil {
			return
		}
		outcome := "ok"
		switch {
		case IsInvalidInput(err):
			outcome = "invalid"
		case err != nil:
			outcome = "failed"
		}
		s.metrics.ObserveSearch(outcome, time.Since(started))
	}()

	if query == "" {
		return results.Response{}, ErrInvalidQuery
	}
	cfg, err := s.SamplerConfig(req)
	if err != nil {
		return results.Response{}, err
	}

	params := core.SearchParams{
		Query:   query,
		Page:    firstNonEmpty(req.Page, s.opts.DefaultPage),
		Country: firstNonEmpty(req.Country, s.opts.DefaultCountry),
	}
	log.Info().
		Str("page", params.Page).
		Str("country", params.Country).
		Int("target_quality_count", cfg.TargetQualityCount).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("search started")

	cat := &tracedCatalog{next: s.catalog, metrics: s.metrics, log: log}
	items, err := worker.Call(ctx, func(callCtx context.Context) ([]core.Item, error) {
		return cat.Search(callCtx, params)
	}, worker.Options{
		MaxRetries:        s.opts.Enrich.MaxRetries,
		RequestTimeout:    s.opts.CatalogTimeout,
		Limiter:           s.limiter,
		BackoffInitial:    s.opts.Enrich.BackoffInitial,
		BackoffMax:        s.opts.Enrich.BackoffMax,
		BackoffJitterFrac: s.opts.Enrich.BackoffJitterFrac,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results.Response{}, ctxErr
		}
		log.Error().Str("error", util.RedactSecrets(err.Error())).Msg("catalog search failed")
		return results.Response{}, &SearchError{Err: err}
	}
	log.Info().Int("candidates", len(items)).Msg("catalog search returned")

	step := enrich.NewStep(
		&tracedScraper{next: s.scraper, metrics: s.metrics, log: log},
		&tracedSelector{next: s.selector, metrics: s.metrics, log: log},
		s.opts.Enrich,
		log,
	)
	observers := sampler.Observers{sampler.LogObserver{Logger: log}}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}

	run, err := sampler.Sample(ctx, items, cfg, step, observers)
	if err != nil {
		return results.Response{}, err
	}

	assembled := results.Assemble(run)
	resp = results.NewResponse(requestID, len(items), assembled)
	log.Info().
		Int("original_count", resp.OriginalCount).
		Int("returned", len(resp.Products)).
		Int("improved", resp.ImprovedCount).
		Str("stop_reason", resp.Stats.StopReason).
		Dur("duration", time.Since(started)).
		Msg("search finished")
	return resp, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
