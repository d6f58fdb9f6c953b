// Package quality scores a replacement product image against the image the
// catalog originally returned.
//
// Scores are additive over a fixed rule set and live on a 0..MaxScore scale.
// Evaluate is the only scoring authority in the module: the sampler, the
// result assembler and the HTTP layer all read the score it produces.
package quality

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// WeightBetterImage is awarded when a replacement exists and differs from the original.
	WeightBetterImage = 30
	// WeightHighResolution is awarded for size markers in the replacement.
	WeightHighResolution = 20
	// WeightProfessionalHosting is awarded for CDN/asset-host markers in the replacement.
	WeightProfessionalHosting = 15
	// WeightImageFormat is awarded when the replacement ends in a raster extension.
	WeightImageFormat = 10
	// WeightGoodOriginal is awarded when the original is present and not a thumbnail proxy.
	WeightGoodOriginal = 15

	// MaxScore is the top of the scale. Scores are clamped to it.
	MaxScore = WeightBetterImage + WeightHighResolution + WeightProfessionalHosting + WeightImageFormat

	// AdmissionThreshold is the score at or above which an outcome counts as high quality.
	AdmissionThreshold = 50
)

// Reason strings, in the order the rules are evaluated.
const (
	ReasonBetterImage         = "better image found"
	ReasonHighResolution      = "high resolution indicators"
	ReasonProfessionalHosting = "professional hosting"
	ReasonImageFormat         = "good image format"
	ReasonNoBetterImage       = "no better image found"
	ReasonGoodOriginal        = "good original image"
)

var (
	dimensionRe = regexp.MustCompile(`\d{3,4}x\d{3,4}`)

	// SizeMarkers are substrings that suggest a large rendition.
	SizeMarkers = []string{"large", "xl", "hires", "high-res", "zoom", "fullsize"}

	// HostingMarkers are substrings found in CDN and media-host URLs.
	HostingMarkers = []string{"cdn", "assets", "media", "images", "static", "cloudfront", "akamai", "cloudinary", "imgix", "shopify"}

	// ImageExtensions are the raster formats accepted as a good image format.
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".avif"}

	// LowQualityMarkers identify thumbnail proxies and tiny renditions.
	LowQualityMarkers = []string{"encrypted-tbn", "thumb", "small", "tiny", "placeholder"}
)

// Result is the outcome of one evaluation.
type Result struct {
	Score   int
	Reasons []string
}

// Evaluate scores improved against original. Empty strings mean "absent".
func Evaluate(original, improved string) Result {
	original = strings.TrimSpace(original)
	improved = strings.TrimSpace(improved)

	score := 0
	reasons := make([]string, 0, 5)

	if improved != "" && improved != original {
		score += WeightBetterImage
		reasons = append(reasons, ReasonBetterImage)

		lower := strings.ToLower(improved)
		if HasSizeMarker(lower) {
			score += WeightHighResolution
			reasons = append(reasons, ReasonHighResolution)
		}
		if HasHostingMarker(lower) {
			score += WeightProfessionalHosting
			reasons = append(reasons, ReasonProfessionalHosting)
		}
		if HasImageExtension(lower) {
			score += WeightImageFormat
			reasons = append(reasons, ReasonImageFormat)
		}
	} else {
		reasons = append(reasons, ReasonNoBetterImage)
	}

	// A replacement that already earns the ceiling is not credited for the
	// original it replaces.
	if score < MaxScore && original != "" && !containsAny(strings.ToLower(original), LowQualityMarkers) {
		score += WeightGoodOriginal
		reasons = append(reasons, ReasonGoodOriginal)
	}

	if score > MaxScore {
		score = MaxScore
	}
	return Result{Score: score, Reasons: reasons}
}

// Admitted reports whether score meets the default admission threshold.
func Admitted(score int) bool {
	return score >= AdmissionThreshold
}

// HasSizeMarker reports whether s carries a dimension token or size word.
func HasSizeMarker(s string) bool {
	s = strings.ToLower(s)
	return dimensionRe.MatchString(s) || containsAny(s, SizeMarkers)
}

// HasHostingMarker reports whether s looks like a CDN or media-host URL.
func HasHostingMarker(s string) bool {
	return containsAny(strings.ToLower(s), HostingMarkers)
}

// HasImageExtension reports whether the path of s ends in a raster image
// extension. Query strings and fragments are ignored.
func HasImageExtension(s string) bool {
	p := strings.ToLower(s)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
