package enrich

import (
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/quality"
)

// ReasonNoDetailRef is the only reason on the outcome of an item that cannot be enriched.
const ReasonNoDetailRef = "no detail reference available"

// Outcome is the result of one enrichment attempt. It is never mutated after
// Enrich returns.
type Outcome struct {
	// ImprovedImageRef is the validated replacement image, or the original
	// image reference when no replacement was found.
	ImprovedImageRef string
	// Improved is true when ImprovedImageRef differs from the original.
	Improved bool

	QualityScore   int
	QualityReasons []string
}

// HighQuality reports whether the outcome meets threshold.
func (o Outcome) HighQuality(threshold int) bool {
	return o.QualityScore >= threshold
}

// NoDetailRefOutcome is the deterministic zero-effort outcome for an item
// without a detail page.
func NoDetailRefOutcome(originalImageRef string) Outcome {
	return Outcome{
		ImprovedImageRef: strings.TrimSpace(originalImageRef),
		QualityScore:     0,
		QualityReasons:   []string{ReasonNoDetailRef},
	}
}

// outcomeFor compares references in trimmed form, the same form Evaluate
// scores them in.
func outcomeFor(original, candidate string) Outcome {
	original = strings.TrimSpace(original)
	candidate = strings.TrimSpace(candidate)
	res := quality.Evaluate(original, candidate)
	out := Outcome{
		ImprovedImageRef: original,
		QualityScore:     res.Score,
		QualityReasons:   res.Reasons,
	}
	if candidate != "" {
		out.ImprovedImageRef = candidate
		out.Improved = candidate != original
	}
	return out
}
