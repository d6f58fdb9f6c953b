// Package htmlpage scrapes a product page directly and renders its images as
// markdown, for use when no hosted scrape service is configured.
package htmlpage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/httpclient"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; product-image-sampler/1.0)"

// maxImages bounds the rendered content so prompts stay small.
const maxImages = 40

type Scraper struct {
	http      *http.Client
	userAgent string
}

var _ core.Scraper = (*Scraper)(nil)

// New returns a Scraper. hc may be nil; userAgent defaults to a generic bot string.
func New(hc *http.Client, userAgent string) *Scraper {
	if hc == nil {
		hc = http.DefaultClient
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return &Scraper{http: hc, userAgent: userAgent}
}

func (s *Scraper) Scrape(ctx context.Context, detailRef string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(detailRef))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("invalid detail url %q", detailRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	b, err := httpclient.Do(ctx, s.http, req, "fetchPage")
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("parse page html: %w", err)
	}
	return Render(doc, pageURL), nil
}

// Render writes the page title, the og:image and every img element of doc as
// markdown image lines, resolving relative URLs against base. It returns ""
// when the page has no images.
func Render(doc *goquery.Document, base *url.URL) string {
	seen := map[string]bool{}
	var lines []string
	add := func(alt, src string) {
		if len(lines) >= maxImages {
			return
		}
		abs := resolve(base, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		lines = append(lines, fmt.Sprintf("![%s](%s)", cleanAlt(alt), abs))
	}

	doc.Find(`meta[property="og:image"], meta[name="og:image"], meta[property="og:image:url"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok {
			add("og:image", v)
		}
	})

	root := doc.Find("main, article, [role=main]").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	root.Find("img").Each(func(_ int, sel *goquery.Selection) {
		alt, _ := sel.Attr("alt")
		if v, ok := sel.Attr("srcset"); ok {
			if src := largestSrcset(v); src != "" {
				add(alt, src)
				return
			}
		}
		for _, attr := range []string{"data-zoom-image", "data-large", "data-src", "src"} {
			if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
				add(alt, v)
				return
			}
		}
	})

	if len(lines) == 0 {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		lines = append([]string{"# " + title, ""}, lines...)
	}
	return strings.Join(lines, "\n")
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// largestSrcset picks the candidate with the largest width descriptor, or the
// last candidate when no widths are given.
func largestSrcset(srcset string) string {
	best, bestW := "", -1
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		w := 0
		if len(fields) > 1 {
			var n int
			if _, err := fmt.Sscanf(fields[1], "%dw", &n); err == nil {
				w = n
			}
		}
		if w >= bestW {
			best, bestW = fields[0], w
		}
	}
	return best
}

func cleanAlt(alt string) string {
	alt = strings.Join(strings.Fields(alt), " ")
	alt = strings.NewReplacer("[", "", "]", "").Replace(alt)
	return alt
}
