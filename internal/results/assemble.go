// Package results turns a finished sampling run into the caller-facing
// result set and its summary statistics.
package results

import (
	"slices"

	"github.com/shpitdev/product-image-sampler/internal/sampler"
)

// Stats summarizes one sampling run.
type Stats struct {
	TotalProcessed   int  `json:"totalProcessed"`
	HighQualityCount int  `json:"highQualityCount"`
	ImprovedCount    int  `json:"improvedCount"`
	TargetAchieved   bool `json:"targetAchieved"`
	FilteredOutCount int  `json:"filteredOutCount"`

	StopReason string `json:"stopReason"`
	Batches    int    `json:"batches"`
}

// Assembly is the assembled view of a run.
type Assembly struct {
	// HighQuality holds the entries at or above the admission threshold, best first.
	HighQuality []sampler.Entry
	// Sorted holds every processed entry, best first.
	Sorted []sampler.Entry
	Stats  Stats
}

// Assemble sorts the run's entries by score descending and keeps the ones at
// or above the run's admission threshold. Ties keep sampler order.
func Assemble(run sampler.Run) Assembly {
	cfg := run.Config.WithDefaults()

	sorted := slices.Clone(run.Entries)
	slices.SortStableFunc(sorted, func(a, b sampler.Entry) int {
		return b.Outcome.QualityScore - a.Outcome.QualityScore
	})

	high := make([]sampler.Entry, 0, len(sorted))
	improved := 0
	for _, e := range sorted {
		if e.Outcome.HighQuality(cfg.Threshold()) {
			high = append(high, e)
		}
		if e.Outcome.Improved {
			improved++
		}
	}

	return Assembly{
		HighQuality: high,
		Sorted:      sorted,
		Stats: Stats{
			TotalProcessed:   len(sorted),
			HighQualityCount: len(high),
			ImprovedCount:    improved,
			TargetAchieved:   len(high) >= cfg.TargetQualityCount,
			FilteredOutCount: len(sorted) - len(high),
			StopReason:       string(run.State),
			Batches:          run.Batches,
		},
	}
}
