package mockcatalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/product-image-sampler/internal/catalog"
	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/mockcatalog"
	"github.com/shpitdev/product-image-sampler/internal/scrape/firecrawl"
	"github.com/shpitdev/product-image-sampler/internal/scrape/htmlpage"
	"github.com/shpitdev/product-image-sampler/internal/selector/llama"
)

func TestServer_EndToEndWithRealClients(t *testing.T) {
	t.Parallel()

	mock := mockcatalog.New(4)
	mock.RequireAPIKey("k")
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	cat, err := catalog.NewClient(catalog.Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	items, err := cat.Search(context.Background(), core.SearchParams{Query: "desk lamp"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 4 || !strings.HasPrefix(items[0].DetailRef, srv.URL+"/products/") {
		t.Fatalf("unexpected items: %#v", items)
	}

	fc, err := firecrawl.New(firecrawl.Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	md, err := fc.Scrape(context.Background(), items[0].DetailRef)
	if err != nil {
		t.Fatalf("firecrawl scrape: %v", err)
	}
	if !strings.Contains(md, "_1200x1200.jpg") {
		t.Fatalf("markdown missing page image: %q", md)
	}

	page, err := htmlpage.New(srv.Client(), "").Scrape(context.Background(), items[0].DetailRef)
	if err != nil {
		t.Fatalf("html scrape: %v", err)
	}
	if !strings.Contains(page, "_1200x1200.jpg") || strings.Contains(page, "logo.png") {
		t.Fatalf("unexpected page content: %q", page)
	}

	sel, err := llama.New(llama.Config{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	got, err := sel.SelectImage(context.Background(), core.SelectRequest{Content: md, DetailRef: items[0].DetailRef})
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if !strings.HasSuffix(got, "_1200x1200.jpg") {
		t.Fatalf("selected %q", got)
	}

	if mock.CallCount("/api/google/shopping") != 1 || mock.CallCount("/v1/scrape") != 1 || mock.CallCount("/chat/completions") != 1 {
		t.Fatalf("unexpected calls: %#v", mock.Calls())
	}
}

func TestServer_FixturesAndFailures(t *testing.T) {
	t.Parallel()

	mock := mockcatalog.New(0)
	mock.SetProducts("chair", []mockcatalog.Product{
		{ID: "c1", Title: "Chair", ImageURL: "https://shop.example.com/c1.jpg", ScrapeFails: true},
		{ID: "c2", Title: "Stool", NoLink: true},
	})
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	cat, err := catalog.NewClient(catalog.Config{BaseURL: srv.URL, APIKey: "any"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	items, err := cat.Search(context.Background(), core.SearchParams{Query: "Chair"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].DetailRef != "" {
		t.Fatalf("unexpected items: %#v", items)
	}

	fc, _ := firecrawl.New(firecrawl.Config{BaseURL: srv.URL, APIKey: "any"}, srv.Client())
	if _, err := fc.Scrape(context.Background(), items[0].DetailRef); err == nil {
		t.Fatalf("expected scrape failure")
	}

	empty, err := cat.Search(context.Background(), core.SearchParams{Query: "unknown"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown query: %v %v", empty, err)
	}

	mock.FailSearch(http.StatusServiceUnavailable)
	if _, err := cat.Search(context.Background(), core.SearchParams{Query: "chair"}); err == nil {
		t.Fatalf("expected search failure")
	}
}

func TestServer_RejectsWrongKey(t *testing.T) {
	t.Parallel()

	mock := mockcatalog.New(1)
	mock.RequireAPIKey("right")
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	cat, _ := catalog.NewClient(catalog.Config{BaseURL: srv.URL, APIKey: "wrong"}, srv.Client())
	if _, err := cat.Search(context.Background(), core.SearchParams{Query: "x"}); err == nil {
		t.Fatalf("expected auth failure")
	}
}
