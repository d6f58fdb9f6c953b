package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/util"
	"github.com/shpitdev/product-image-sampler/internal/worker"
)

// Options bound the two collaborator calls made per item.
type Options struct {
	ScrapeTimeout time.Duration
	SelectTimeout time.Duration
	MaxRetries    int

	// Limiter is shared by every collaborator call in the process. Nil disables limiting.
	Limiter *rate.Limiter

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64
}

func (o Options) withDefaults() Options {
	if o.ScrapeTimeout <= 0 {
		o.ScrapeTimeout = 30 * time.Second
	}
	if o.SelectTimeout <= 0 {
		o.SelectTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return o
}

func (o Options) callOptions(timeout time.Duration) worker.Options {
	return worker.Options{
		MaxRetries:        o.MaxRetries,
		RequestTimeout:    timeout,
		Limiter:           o.Limiter,
		BackoffInitial:    o.BackoffInitial,
		BackoffMax:        o.BackoffMax,
		BackoffJitterFrac: o.BackoffJitterFrac,
	}
}

// Step enriches one item: scrape the detail page, ask the selector for the
// best image, validate it and score it.
type Step struct {
	scraper  core.Scraper
	selector core.ImageSelector
	opts     Options
	logger   zerolog.Logger
}

func NewStep(scraper core.Scraper, selector core.ImageSelector, opts Options, logger zerolog.Logger) *Step {
	return &Step{
		scraper:  scraper,
		selector: selector,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Enrich never fails: every collaborator error degrades the item to
// "no improvement".
func (s *Step) Enrich(ctx context.Context, item core.Item) (out Outcome) {
	detailRef := strings.TrimSpace(item.DetailRef)
	if detailRef == "" {
		return NoDetailRefOutcome(item.ImageRef)
	}

	log := s.logger.With().Int("rank", item.Rank).Str("detail_ref", detailRef).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("enrichment panicked; keeping original image")
			out = outcomeFor(item.ImageRef, "")
		}
	}()

	candidate := s.findCandidate(ctx, item, detailRef, log)
	return outcomeFor(item.ImageRef, candidate)
}

func (s *Step) findCandidate(ctx context.Context, item core.Item, detailRef string, log zerolog.Logger) string {
	if s.scraper == nil || s.selector == nil {
		return ""
	}

	content, err := worker.Call(ctx, func(callCtx context.Context) (string, error) {
		return s.scraper.Scrape(callCtx, detailRef)
	}, s.opts.callOptions(s.opts.ScrapeTimeout))
	if err != nil {
		log.Debug().Str("error", util.RedactSecrets(err.Error())).Msg("scrape failed")
		return ""
	}
	if strings.TrimSpace(content) == "" {
		log.Debug().Msg("scrape returned no content")
		return ""
	}

	raw, err := worker.Call(ctx, func(callCtx context.Context) (string, error) {
		return s.selector.SelectImage(callCtx, core.SelectRequest{
			Content:   content,
			DetailRef: detailRef,
			Title:     item.Title,
		})
	}, s.opts.callOptions(s.opts.SelectTimeout))
	if err != nil {
		if errors.Is(err, core.ErrNoCandidate) {
			log.Debug().Msg("selector found no image")
		} else {
			log.Debug().Str("error", util.RedactSecrets(err.Error())).Msg("image selection failed")
		}
		return ""
	}

	candidate := ValidateCandidate(raw)
	if candidate == "" {
		log.Debug().Str("candidate", raw).Msg("discarding invalid image candidate")
	}
	return candidate
}
