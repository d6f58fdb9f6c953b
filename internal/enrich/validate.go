package enrich

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/quality"
)

// logoBannerName matches file names that carry a non-product marker as a
// whole token, such as "brand-logo.png" or "favicon.ico". Words that merely
// contain a marker ("ecologo-tshirt.jpg") do not match.
var logoBannerName = regexp.MustCompile(`(^|[_.-])(logo|favicon|sprite|banner|badge|avatar|icons?)([_.-]|$)`)

// isLogoOrBanner reports whether the URL path names a site asset rather than
// a product image. Only the file name and an "icons" directory are inspected.
func isLogoOrBanner(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	if logoBannerName.MatchString(path.Base(p)) {
		return true
	}
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if seg == "icons" {
			return true
		}
	}
	return false
}

// ValidateCandidate returns the trimmed candidate if it is an absolute http(s)
// URL that either ends in a raster image extension or is served from a known
// image host. It returns "" for anything else.
func ValidateCandidate(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.EqualFold(candidate, "none") {
		return ""
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	if isLogoOrBanner(u) {
		return ""
	}
	lower := strings.ToLower(candidate)
	if !quality.HasImageExtension(lower) && !quality.HasHostingMarker(lower) {
		return ""
	}
	return candidate
}
