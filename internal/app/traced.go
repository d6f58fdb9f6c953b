package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/metrics"
	"github.com/shpitdev/product-image-sampler/internal/util"
	"github.com/shpitdev/product-image-sampler/internal/worker"
)

// The traced wrappers time every collaborator call, feed the metrics and
// write one debug line per attempt. Errors pass through unchanged.

type tracedCatalog struct {
	next    core.Catalog
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (t *tracedCatalog) Search(ctx context.Context, params core.SearchParams) ([]core.Item, error) {
	start := time.Now()
	items, err := t.next.Search(ctx, params)
	observe(ctx, t.metrics, t.log, metrics.Catalog, start, err).
		Int("items", len(items)).
		Msg("catalog call")
	return items, err
}

type tracedScraper struct {
	next    core.Scraper
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (t *tracedScraper) Scrape(ctx context.Context, detailRef string) (string, error) {
	start := time.Now()
	content, err := t.next.Scrape(ctx, detailRef)
	observe(ctx, t.metrics, t.log, metrics.Scrape, start, err).
		Str("detail_ref", detailRef).
		Int("content_bytes", len(content)).
		Msg("scrape call")
	return content, err
}

type tracedSelector struct {
	next    core.ImageSelector
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (t *tracedSelector) SelectImage(ctx context.Context, req core.SelectRequest) (string, error) {
	start := time.Now()
	candidate, err := t.next.SelectImage(ctx, req)
	// "none" is an answer, not a failed call.
	callErr := err
	if errors.Is(err, core.ErrNoCandidate) {
		callErr = nil
	}
	observe(ctx, t.metrics, t.log, metrics.Selector, start, callErr).
		Str("detail_ref", req.DetailRef).
		Str("candidate", candidate).
		Bool("no_candidate", errors.Is(err, core.ErrNoCandidate)).
		Msg("image selection call")
	return candidate, err
}

func observe(ctx context.Context, m *metrics.Metrics, log zerolog.Logger, collaborator string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	if m != nil {
		m.ObserveCall(collaborator, elapsed, err)
	}

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	ev := log.Debug().
		Str("collaborator", collaborator).
		Dur("elapsed", elapsed.Round(time.Millisecond)).
		Str("deadline_in", deadlineIn)
	if err != nil {
		ev = ev.Str("error", util.RedactSecrets(err.Error())).Bool("retryable", worker.IsTransient(err))
	}
	return ev
}
