// Package sampler decides how many ranked candidates to enrich, in what order,
// and when to stop.
//
// A run pulls contiguous batches from the candidate list, enriches each batch
// concurrently, and resizes the next batch from the batch's observed success
// and quality rates. It stops once enough high-quality outcomes were collected
// or the attempt budget (or the candidate list) is used up.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/enrich"
	"github.com/shpitdev/product-image-sampler/internal/quality"
	"github.com/shpitdev/product-image-sampler/internal/worker"
)

const (
	DefaultTargetQualityCount = 2
	DefaultMaxAttempts        = 6

	// InitialBatchSize is the size of the first batch and of every batch after
	// a good or moderate one.
	InitialBatchSize = 2
	// WideBatchSize is used after a batch with a poor success or quality rate.
	WideBatchSize = 3

	goodRate = 0.5
	poorRate = 0.25
)

// State is the sampler's position in its state machine.
type State string

const (
	StateRunning             State = "running"
	StateTargetMet           State = "target_met"
	StateBudgetExhausted     State = "budget_exhausted"
	StateExhaustedCandidates State = "exhausted_candidates"
)

// Config controls one sampling run.
type Config struct {
	TargetQualityCount int
	MaxAttempts        int
	// AdmissionThreshold is the minimum score of a high-quality outcome.
	// Nil selects quality.AdmissionThreshold; zero admits every outcome.
	AdmissionThreshold *int
}

// AdmitAt returns an AdmissionThreshold value for score.
func AdmitAt(score int) *int {
	return &score
}

// Threshold returns the effective admission threshold.
func (c Config) Threshold() int {
	if c.AdmissionThreshold == nil {
		return quality.AdmissionThreshold
	}
	return *c.AdmissionThreshold
}

// WithDefaults fills zero fields and a nil AdmissionThreshold.
func (c Config) WithDefaults() Config {
	if c.TargetQualityCount == 0 {
		c.TargetQualityCount = DefaultTargetQualityCount
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AdmissionThreshold == nil {
		c.AdmissionThreshold = AdmitAt(quality.AdmissionThreshold)
	}
	return c
}

// ErrInvalidConfig wraps every Config validation failure.
var ErrInvalidConfig = errors.New("invalid sampler config")

// Validate checks the invariants between fields. Call it after WithDefaults.
func (c Config) Validate() error {
	if c.TargetQualityCount < 1 {
		return fmt.Errorf("%w: targetQualityCount must be >= 1 (got %d)", ErrInvalidConfig, c.TargetQualityCount)
	}
	if c.MaxAttempts < c.TargetQualityCount {
		return fmt.Errorf("%w: maxAttempts must be >= targetQualityCount (got %d < %d)", ErrInvalidConfig, c.MaxAttempts, c.TargetQualityCount)
	}
	if t := c.Threshold(); t < 0 || t > quality.MaxScore {
		return fmt.Errorf("%w: admissionThreshold must be within [0,%d] (got %d)", ErrInvalidConfig, quality.MaxScore, t)
	}
	return nil
}

// Enricher produces one outcome per item. It must not fail.
type Enricher interface {
	Enrich(ctx context.Context, item core.Item) enrich.Outcome
}

// EnrichFunc adapts a function to the Enricher interface.
type EnrichFunc func(ctx context.Context, item core.Item) enrich.Outcome

func (f EnrichFunc) Enrich(ctx context.Context, item core.Item) enrich.Outcome {
	return f(ctx, item)
}

// Entry pairs a candidate with its outcome. Item points into the candidate
// slice passed to Sample.
type Entry struct {
	Item    *core.Item
	Outcome enrich.Outcome
}

// Run is the result of one sampling run.
type Run struct {
	// Entries are the accumulated outcomes in candidate rank order.
	Entries []Entry
	State   State
	Config  Config

	Batches          int
	Cursor           int
	HighQualityCount int
	Candidates       int
}

// TargetAchieved reports whether the run collected enough high-quality outcomes.
func (r Run) TargetAchieved() bool {
	return r.HighQualityCount >= r.Config.TargetQualityCount
}

// NextBatchSize returns the size of the next batch given the rates observed in
// the previous one and the number of attempts still available.
func NextBatchSize(successRate, qualityRate float64, remaining int) int {
	if remaining < 1 {
		return 1
	}
	size := InitialBatchSize
	switch {
	case successRate >= goodRate && qualityRate >= goodRate:
		size = InitialBatchSize
	case successRate < poorRate || qualityRate < poorRate:
		size = WideBatchSize
		if size > remaining {
			size = remaining
		}
	}
	return size
}

// Sample runs the adaptive batch loop over candidates. The observer may be nil.
//
// Sample only returns an error for an invalid config or when ctx is done.
func Sample(ctx context.Context, candidates []core.Item, cfg Config, enricher Enricher, observer Observer) (Run, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Run{}, err
	}
	if observer == nil {
		observer = nopObserver{}
	}

	budget := min(len(candidates), cfg.MaxAttempts)
	run := Run{
		Entries:    make([]Entry, 0, budget),
		State:      StateRunning,
		Config:     cfg,
		Candidates: len(candidates),
	}
	observer.StateChanged(ctx, StateChange{From: "", To: StateRunning, Run: run})

	batchSize := InitialBatchSize
	for {
		if next, done := stopState(run, cfg, budget); done {
			prev := run.State
			run.State = next
			observer.StateChanged(ctx, StateChange{From: prev, To: next, Run: run})
			return run, nil
		}

		end := min(run.Cursor+batchSize, budget)
		idxs := make([]int, 0, end-run.Cursor)
		for i := run.Cursor; i < end; i++ {
			idxs = append(idxs, i)
		}

		started := time.Now()
		observer.BatchStarted(ctx, BatchStart{Index: run.Batches, Start: run.Cursor, Size: len(idxs)})

		results, err := worker.ProcessAll(ctx, idxs, func(ctx context.Context, i int) (enrich.Outcome, error) {
			return enricher.Enrich(ctx, candidates[i]), nil
		}, worker.Options{Workers: len(idxs)})
		if err != nil {
			return run, err
		}

		improved, admitted := 0, 0
		for _, r := range results {
			o := r.Output
			run.Entries = append(run.Entries, Entry{Item: &candidates[r.Input], Outcome: o})
			if o.Improved {
				improved++
			}
			if o.HighQuality(cfg.Threshold()) {
				admitted++
			}
		}
		run.HighQualityCount += admitted
		run.Cursor += len(idxs)
		run.Batches++

		successRate := float64(improved) / float64(len(idxs))
		qualityRate := float64(admitted) / float64(len(idxs))
		batchSize = NextBatchSize(successRate, qualityRate, budget-run.Cursor)

		observer.BatchFinished(ctx, BatchFinish{
			Index:       run.Batches - 1,
			Start:       run.Cursor - len(idxs),
			Size:        len(idxs),
			Improved:    improved,
			HighQuality: admitted,
			SuccessRate: successRate,
			QualityRate: qualityRate,
			NextSize:    batchSize,
			Duration:    time.Since(started),
			Run:         run,
		})
	}
}

func stopState(run Run, cfg Config, budget int) (State, bool) {
	if run.HighQualityCount >= cfg.TargetQualityCount {
		return StateTargetMet, true
	}
	if run.Cursor >= budget {
		if run.Candidates < cfg.MaxAttempts {
			return StateExhaustedCandidates, true
		}
		return StateBudgetExhausted, true
	}
	return StateRunning, false
}
