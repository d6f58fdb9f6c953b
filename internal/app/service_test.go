package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/app"
	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/enrich"
	"github.com/shpitdev/product-image-sampler/internal/metrics"
	"github.com/shpitdev/product-image-sampler/internal/quality"
	"github.com/shpitdev/product-image-sampler/internal/sampler"
)

type catalogFunc struct {
	mu     sync.Mutex
	calls  int
	params core.SearchParams
	f      func(ctx context.Context, params core.SearchParams) ([]core.Item, error)
}

func (c *catalogFunc) Search(ctx context.Context, params core.SearchParams) ([]core.Item, error) {
	c.mu.Lock()
	c.calls++
	c.params = params
	c.mu.Unlock()
	return c.f(ctx, params)
}

type scraperFunc func(ctx context.Context, detailRef string) (string, error)

func (f scraperFunc) Scrape(ctx context.Context, detailRef string) (string, error) {
	return f(ctx, detailRef)
}

type selectorFunc func(ctx context.Context, req core.SelectRequest) (string, error)

func (f selectorFunc) SelectImage(ctx context.Context, req core.SelectRequest) (string, error) {
	return f(ctx, req)
}

func products(n int) []core.Item {
	out := make([]core.Item, n)
	for i := range out {
		out[i] = core.Item{
			Rank:      i,
			ID:        "p" + string(rune('a'+i)),
			Title:     "Product",
			ImageRef:  "https://encrypted-tbn0.gstatic.com/shopping?q=tbn:" + string(rune('a'+i)),
			DetailRef: "https://shop.example.com/p/" + string(rune('a'+i)),
			Raw:       []byte(`{"title":"Product"}`),
		}
	}
	return out
}

func staticCatalog(items []core.Item, err error) *catalogFunc {
	return &catalogFunc{f: func(context.Context, core.SearchParams) ([]core.Item, error) { return items, err }}
}

// pageImage scrapes a page whose only image is derived from the detail ref.
var pageImage = scraperFunc(func(_ context.Context, detailRef string) (string, error) {
	return "![main](" + strings.Replace(detailRef, "shop.example.com/p/", "cdn.example.com/", 1) + "_1200x1200.jpg)", nil
})

var firstImage = selectorFunc(func(_ context.Context, req core.SelectRequest) (string, error) {
	start := strings.Index(req.Content, "](")
	if start < 0 {
		return "", core.ErrNoCandidate
	}
	rest := req.Content[start+2:]
	return rest[:strings.Index(rest, ")")], nil
})

func fastOptions() app.Options {
	return app.Options{
		Enrich: enrich.Options{
			ScrapeTimeout:  time.Second,
			SelectTimeout:  time.Second,
			BackoffInitial: time.Millisecond,
			BackoffMax:     time.Millisecond,
		},
		CatalogTimeout: time.Second,
	}
}

func newService(t *testing.T, cat core.Catalog, sc core.Scraper, sel core.ImageSelector, m *metrics.Metrics) *app.Service {
	t.Helper()
	svc, err := app.NewService(app.Deps{Catalog: cat, Scraper: sc, Selector: sel, Logger: zerolog.Nop(), Metrics: m}, fastOptions())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func intp(v int) *int { return &v }

func TestSearch_ReturnsHighQualityProducts(t *testing.T) {
	t.Parallel()

	cat := staticCatalog(products(6), nil)
	svc := newService(t, cat, pageImage, firstImage, nil)

	resp, err := svc.Search(context.Background(), app.Request{Query: "  desk lamp "})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cat.params.Query != "desk lamp" || cat.params.Page != "1" || cat.params.Country != "us" {
		t.Fatalf("unexpected search params: %#v", cat.params)
	}
	if resp.OriginalCount != 6 || len(resp.Products) != 2 || resp.ImprovedCount != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Stats.StopReason != string(sampler.StateTargetMet) || !resp.Stats.TargetAchieved || resp.Stats.TotalProcessed != 2 {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a request id")
	}
	for i, p := range resp.Products {
		if p.Rank != i || !p.ImageImproved || p.QualityScore != quality.MaxScore {
			t.Fatalf("product %d: %+v", i, p)
		}
		if !strings.HasSuffix(p.BetterImageURL, "_1200x1200.jpg") || string(p.Product) != `{"title":"Product"}` {
			t.Fatalf("product %d: %+v", i, p)
		}
	}
}

func TestSearch_OverridesAndRequestIDs(t *testing.T) {
	t.Parallel()

	cat := staticCatalog(products(8), nil)
	none := selectorFunc(func(context.Context, core.SelectRequest) (string, error) { return "", core.ErrNoCandidate })
	svc := newService(t, cat, pageImage, none, nil)

	resp, err := svc.Search(context.Background(), app.Request{
		Query:              "chair",
		Page:               "2",
		Country:            "de",
		TargetQualityCount: intp(1),
		MaxAttempts:        intp(5),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cat.params.Page != "2" || cat.params.Country != "de" {
		t.Fatalf("unexpected search params: %#v", cat.params)
	}
	if resp.Stats.StopReason != string(sampler.StateBudgetExhausted) || resp.Stats.TotalProcessed != 5 {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
	if len(resp.Products) != 0 || resp.Products == nil || resp.OriginalCount != 8 {
		t.Fatalf("unexpected products: %+v", resp)
	}

	again, err := svc.Search(context.Background(), app.Request{Query: "chair"})
	if err != nil {
		t.Fatal(err)
	}
	if again.RequestID == resp.RequestID {
		t.Fatalf("request ids must differ")
	}
}

func TestSearch_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  app.Request
		want error
	}{
		{name: "empty query", req: app.Request{Query: "   "}, want: app.ErrInvalidQuery},
		{name: "zero target", req: app.Request{Query: "q", TargetQualityCount: intp(0)}, want: app.ErrInvalidOverride},
		{name: "attempts below target", req: app.Request{Query: "q", TargetQualityCount: intp(4), MaxAttempts: intp(3)}, want: app.ErrInvalidOverride},
		{name: "attempts above limit", req: app.Request{Query: "q", MaxAttempts: intp(21)}, want: app.ErrInvalidOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cat := staticCatalog(products(2), nil)
			svc := newService(t, cat, pageImage, firstImage, nil)
			_, err := svc.Search(context.Background(), tt.req)
			if !errors.Is(err, tt.want) || !app.IsInvalidInput(err) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
			if cat.calls != 0 {
				t.Fatalf("catalog must not be called for invalid input")
			}
		})
	}
}

func TestSearch_CatalogFailure(t *testing.T) {
	t.Parallel()

	upstream := errors.New("product search failed: api_key=abc123 status 403")
	svc := newService(t, staticCatalog(nil, upstream), pageImage, firstImage, nil)

	_, err := svc.Search(context.Background(), app.Request{Query: "lamp"})
	var se *app.SearchError
	if !errors.As(err, &se) || !errors.Is(err, upstream) {
		t.Fatalf("expected SearchError wrapping upstream, got %v", err)
	}
	if app.IsInvalidInput(err) {
		t.Fatalf("catalog failure is not invalid input")
	}
	if strings.Contains(err.Error(), "abc123") {
		t.Fatalf("secret leaked: %q", err.Error())
	}
}

func TestSearch_RetriesTransientCatalogFailure(t *testing.T) {
	t.Parallel()

	n := 0
	cat := &catalogFunc{f: func(context.Context, core.SearchParams) ([]core.Item, error) {
		n++
		if n == 1 {
			return nil, &core.TransientError{Err: errors.New("503")}
		}
		return products(2), nil
	}}
	opts := fastOptions()
	opts.Enrich.MaxRetries = 1
	svc, err := app.NewService(app.Deps{Catalog: cat, Scraper: pageImage, Selector: firstImage, Logger: zerolog.Nop()}, opts)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Search(context.Background(), app.Request{Query: "lamp"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cat.calls != 2 || resp.OriginalCount != 2 {
		t.Fatalf("calls=%d resp=%+v", cat.calls, resp)
	}
}

func TestSearch_EmptyCatalog(t *testing.T) {
	t.Parallel()

	svc := newService(t, staticCatalog(nil, nil), pageImage, firstImage, nil)
	resp, err := svc.Search(context.Background(), app.Request{Query: "nothing"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.OriginalCount != 0 || resp.Products == nil || len(resp.Products) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Stats.StopReason != string(sampler.StateExhaustedCandidates) || resp.Stats.TargetAchieved {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
}

func TestSearch_CollaboratorFailuresDegrade(t *testing.T) {
	t.Parallel()

	broken := scraperFunc(func(context.Context, string) (string, error) { return "", errors.New("firecrawl 500") })
	svc := newService(t, staticCatalog(products(3), nil), broken, firstImage, nil)

	resp, err := svc.Search(context.Background(), app.Request{Query: "lamp"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Stats.TotalProcessed != 3 || resp.Stats.StopReason != string(sampler.StateExhaustedCandidates) {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
	if len(resp.Products) != 0 || resp.ImprovedCount != 0 {
		t.Fatalf("thumbnails without a better image must be filtered: %+v", resp.Products)
	}
}

func TestSearch_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newService(t, staticCatalog(products(2), nil), pageImage, firstImage, nil)
	if _, err := svc.Search(ctx, app.Request{Query: "lamp"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestSearch_RecordsMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	svc := newService(t, staticCatalog(products(4), nil), pageImage, firstImage, m)
	if _, err := svc.Search(context.Background(), app.Request{Query: "lamp"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(context.Background(), app.Request{Query: ""}); err == nil {
		t.Fatal("expected invalid query")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				got[key] = c.GetValue()
			}
		}
	}
	want := map[string]float64{
		"image_sampler_search_requests_total,result=ok":                          1,
		"image_sampler_search_requests_total,result=invalid":                     1,
		"image_sampler_runs_total,stop_reason=target_met":                        1,
		"image_sampler_collaborator_calls_total,collaborator=catalog,outcome=ok": 1,
		"image_sampler_collaborator_calls_total,collaborator=scrape,outcome=ok":  2,
		"image_sampler_batches_total":                                            1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s=%v want %v", k, got[k], v)
		}
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := app.NewService(app.Deps{Scraper: pageImage, Selector: firstImage}, app.Options{}); err == nil {
		t.Fatal("expected error without catalog")
	}
	if _, err := app.NewService(app.Deps{Catalog: staticCatalog(nil, nil)}, app.Options{}); err == nil {
		t.Fatal("expected error without scraper and selector")
	}
	_, err := app.NewService(app.Deps{Catalog: staticCatalog(nil, nil), Scraper: pageImage, Selector: firstImage},
		app.Options{Sampler: sampler.Config{MaxAttempts: 30}, MaxAttemptsLimit: 20})
	if !errors.Is(err, sampler.ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}
