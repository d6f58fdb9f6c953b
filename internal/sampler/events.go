package sampler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BatchStart is emitted before a batch is enriched.
type BatchStart struct {
	Index int
	Start int
	Size  int
}

// BatchFinish is emitted after a batch's outcomes were merged and the next
// batch size was chosen.
type BatchFinish struct {
	Index       int
	Start       int
	Size        int
	Improved    int
	HighQuality int
	SuccessRate float64
	QualityRate float64
	NextSize    int
	Duration    time.Duration

	// Run is a snapshot after the merge. Observers must not modify it.
	Run Run
}

// StateChange is emitted when a run starts and when it reaches a terminal state.
type StateChange struct {
	From State
	To   State
	Run  Run
}

// Observer receives sampler events synchronously from the sampling goroutine.
type Observer interface {
	BatchStarted(ctx context.Context, ev BatchStart)
	BatchFinished(ctx context.Context, ev BatchFinish)
	StateChanged(ctx context.Context, ev StateChange)
}

type nopObserver struct{}

func (nopObserver) BatchStarted(context.Context, BatchStart)   {}
func (nopObserver) BatchFinished(context.Context, BatchFinish) {}
func (nopObserver) StateChanged(context.Context, StateChange)  {}

// Observers fans events out to every non-nil observer in order.
type Observers []Observer

func (obs Observers) BatchStarted(ctx context.Context, ev BatchStart) {
	for _, o := range obs {
		if o != nil {
			o.BatchStarted(ctx, ev)
		}
	}
}

func (obs Observers) BatchFinished(ctx context.Context, ev BatchFinish) {
	for _, o := range obs {
		if o != nil {
			o.BatchFinished(ctx, ev)
		}
	}
}

func (obs Observers) StateChanged(ctx context.Context, ev StateChange) {
	for _, o := range obs {
		if o != nil {
			o.StateChanged(ctx, ev)
		}
	}
}

// LogObserver writes sampler events to a zerolog logger.
type LogObserver struct {
	Logger zerolog.Logger
}

func (l LogObserver) BatchStarted(_ context.Context, ev BatchStart) {
	l.Logger.Debug().
		Int("batch", ev.Index).
		Int("start", ev.Start).
		Int("size", ev.Size).
		Msg("sampler batch started")
}

func (l LogObserver) BatchFinished(_ context.Context, ev BatchFinish) {
	l.Logger.Info().
		Int("batch", ev.Index).
		Int("start", ev.Start).
		Int("size", ev.Size).
		Int("improved", ev.Improved).
		Int("high_quality", ev.HighQuality).
		Float64("success_rate", ev.SuccessRate).
		Float64("quality_rate", ev.QualityRate).
		Int("next_size", ev.NextSize).
		Int("cursor", ev.Run.Cursor).
		Int("high_quality_total", ev.Run.HighQualityCount).
		Dur("duration", ev.Duration).
		Msg("sampler batch finished")
}

func (l LogObserver) StateChanged(_ context.Context, ev StateChange) {
	evt := l.Logger.Info()
	if ev.To == StateRunning {
		evt = l.Logger.Debug()
	}
	evt.
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Int("candidates", ev.Run.Candidates).
		Int("cursor", ev.Run.Cursor).
		Int("batches", ev.Run.Batches).
		Int("high_quality", ev.Run.HighQualityCount).
		Int("target", ev.Run.Config.TargetQualityCount).
		Int("max_attempts", ev.Run.Config.MaxAttempts).
		Msg("sampler state changed")
}
