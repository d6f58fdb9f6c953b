package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/mockcatalog"
)

func main() {
	addr := defaultString("MOCK_CATALOG_ADDR", ":8080")
	apiKey := defaultString("MOCK_CATALOG_API_KEY", "")
	count, err := strconv.Atoi(defaultString("MOCK_CATALOG_PRODUCTS", "8"))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid MOCK_CATALOG_PRODUCTS: %v\n", err)
		os.Exit(2)
	}

	fs := flag.NewFlagSet("mock-catalog", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_CATALOG_ADDR)")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this key on every endpoint, empty disables (env: MOCK_CATALOG_API_KEY)")
	fs.IntVar(&count, "products", count, "Products generated per query (env: MOCK_CATALOG_PRODUCTS)")
	_ = fs.Parse(os.Args[1:])

	srv := mockcatalog.New(count)
	srv.RequireAPIKey(apiKey)

	_, _ = fmt.Fprintf(os.Stdout, "mock-catalog listening on %s (products=%d)\n", addr, count)
	_, _ = fmt.Fprintf(os.Stdout, "point RAPIDAPI_BASE_URL, FIRECRAWL_BASE_URL and LLAMA_BASE_URL at http://localhost%s\n", portSuffix(addr))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func portSuffix(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
