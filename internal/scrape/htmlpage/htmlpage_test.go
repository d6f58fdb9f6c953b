package htmlpage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/product-image-sampler/internal/scrape/htmlpage"
)

const productPage = `<!doctype html>
<html><head>
<title>Linen Shirt | Shop</title>
<meta property="og:image" content="https://cdn.example.com/linen_1200x1200.jpg">
</head><body>
<header><img src="/static/logo.png" alt="Shop"></header>
<main>
  <img src="/img/linen_small.jpg" srcset="/img/linen_400.jpg 400w, /img/linen_1600.jpg 1600w" alt="Linen [shirt]">
  <img data-src="https://images.example.com/linen-back.webp" src="data:image/gif;base64,R0lGOD" alt="Back">
  <img src="https://cdn.example.com/linen_1200x1200.jpg" alt="dup">
</main>
</body></html>`

func TestScrape_RendersMainImages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	md, err := htmlpage.New(srv.Client(), "").Scrape(context.Background(), srv.URL+"/p/linen")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	want := []string{
		"# Linen Shirt | Shop",
		"",
		"![og:image](https://cdn.example.com/linen_1200x1200.jpg)",
		"![Linen shirt](" + srv.URL + "/img/linen_1600.jpg)",
		"![Back](https://images.example.com/linen-back.webp)",
	}
	if md != strings.Join(want, "\n") {
		t.Fatalf("markdown:\n%s\nwant:\n%s", md, strings.Join(want, "\n"))
	}
	if strings.Contains(md, "logo.png") {
		t.Fatalf("header images outside main content must be skipped")
	}
}

func TestRender_NoImages(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>hi</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse("https://shop.example.com/p")
	if got := htmlpage.Render(doc, base); got != "" {
		t.Fatalf("expected empty content, got %q", got)
	}
}

func TestScrape_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := htmlpage.New(srv.Client(), "test-agent")
	if _, err := s.Scrape(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := s.Scrape(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
