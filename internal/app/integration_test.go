package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/app"
	"github.com/shpitdev/product-image-sampler/internal/config"
	"github.com/shpitdev/product-image-sampler/internal/mockcatalog"
	"github.com/shpitdev/product-image-sampler/internal/results"
	"github.com/shpitdev/product-image-sampler/internal/sampler"
)

func mockConfig(baseURL, scrapeBackend string) config.Config {
	cfg := config.Default()
	cfg.Catalog.BaseURL = baseURL
	cfg.Catalog.APIKey = "test-key"
	cfg.Scrape.Backend = scrapeBackend
	cfg.Scrape.Firecrawl.BaseURL = baseURL
	cfg.Scrape.Firecrawl.APIKey = "test-key"
	cfg.Selector.Llama.BaseURL = baseURL
	cfg.Selector.Llama.APIKey = "test-key"
	cfg.Enrich.BackoffInitial = time.Millisecond
	cfg.Enrich.BackoffMax = time.Millisecond
	return cfg
}

func startMock(t *testing.T, defaultCount int) (*mockcatalog.Server, string) {
	t.Helper()
	mock := mockcatalog.New(defaultCount)
	mock.RequireAPIKey("test-key")
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)
	return mock, srv.URL
}

func TestNewFromConfig_SearchAgainstMock(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{config.ScrapeFirecrawl, config.ScrapeHTML} {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			mock, baseURL := startMock(t, 5)
			svc, err := app.NewFromConfig(context.Background(), mockConfig(baseURL, backend), zerolog.Nop(), nil)
			if err != nil {
				t.Fatalf("NewFromConfig: %v", err)
			}

			resp, err := svc.Search(context.Background(), app.Request{Query: "desk lamp"})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if resp.OriginalCount != 5 || len(resp.Products) != 2 || resp.Stats.StopReason != string(sampler.StateTargetMet) {
				t.Fatalf("unexpected response: %+v", resp)
			}
			for _, p := range resp.Products {
				if !p.ImageImproved || !strings.HasPrefix(p.BetterImageURL, "https://cdn.example.com/products/") {
					t.Fatalf("unexpected product: %+v", p)
				}
				if !strings.Contains(string(p.Product), `"source":"Mock Store"`) {
					t.Fatalf("provider record not passed through: %s", p.Product)
				}
			}

			scrapes := mock.CallCount("/v1/scrape")
			if backend == config.ScrapeHTML {
				scrapes = mock.CallCount("/products/desk-lamp-0") + mock.CallCount("/products/desk-lamp-1")
			}
			if scrapes != 2 || mock.CallCount("/chat/completions") != 2 {
				t.Fatalf("unexpected upstream calls: %#v", mock.Calls())
			}
		})
	}
}

func TestNewFromConfig_MissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if _, err := app.NewFromConfig(context.Background(), cfg, zerolog.Nop(), nil); err == nil {
		t.Fatal("expected missing credential error")
	}
}

func TestRunBatch_WritesRowsPerQuery(t *testing.T) {
	t.Parallel()

	mock, baseURL := startMock(t, 3)
	mock.SetProducts("chair", []mockcatalog.Product{
		{ID: "c1", Title: "Oak chair", ImageURL: "https://encrypted-tbn0.gstatic.com/shopping?q=c1", PageImageURL: "https://cdn.example.com/c1_1200x1200.jpg"},
		{ID: "c2", Title: "Stool", ImageURL: "https://encrypted-tbn0.gstatic.com/shopping?q=c2", NoLink: true},
	})
	svc, err := app.NewFromConfig(context.Background(), mockConfig(baseURL, config.ScrapeFirecrawl), zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader("Query,country\ndesk lamp,us\n  \nchair,\n")
	var out bytes.Buffer
	summary, err := app.RunBatch(context.Background(), svc, in, &out, false)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Queries != 2 || summary.Failed != 0 || summary.Rows != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	records, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 || strings.Join(records[0], ",") != strings.Join(results.Header(), ",") {
		t.Fatalf("unexpected csv: %v", records)
	}
	last := records[3]
	if last[0] != "chair" || last[3] != "Oak chair" || last[6] != "https://cdn.example.com/c1_1200x1200.jpg" || last[10] != string(sampler.StateExhaustedCandidates) {
		t.Fatalf("unexpected chair row: %v", last)
	}
}

func TestRunBatch_SearchFailures(t *testing.T) {
	t.Parallel()

	mock, baseURL := startMock(t, 3)
	mock.FailSearch(http.StatusForbidden)
	svc, err := app.NewFromConfig(context.Background(), mockConfig(baseURL, config.ScrapeFirecrawl), zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	input := "query\nlamp\nchair\n"

	var out bytes.Buffer
	summary, err := app.RunBatch(context.Background(), svc, strings.NewReader(input), &out, false)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Queries != 2 || summary.Failed != 2 || summary.Rows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if strings.TrimSpace(out.String()) != strings.Join(results.Header(), ",") {
		t.Fatalf("expected header only, got %q", out.String())
	}

	summary, err = app.RunBatch(context.Background(), svc, strings.NewReader(input), &bytes.Buffer{}, true)
	if err == nil || summary.Queries != 1 {
		t.Fatalf("fail-fast: summary=%+v err=%v", summary, err)
	}
}

func TestRunBatch_MissingQueryColumn(t *testing.T) {
	t.Parallel()

	svc := newService(t, staticCatalog(nil, nil), pageImage, firstImage, nil)
	if _, err := app.RunBatch(context.Background(), svc, strings.NewReader("term\nlamp\n"), &bytes.Buffer{}, false); err == nil {
		t.Fatal("expected error for missing query column")
	}
}
