package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shpitdev/product-image-sampler/internal/app"
	"github.com/shpitdev/product-image-sampler/internal/config"
	"github.com/shpitdev/product-image-sampler/internal/httpapi"
	"github.com/shpitdev/product-image-sampler/internal/logging"
	"github.com/shpitdev/product-image-sampler/internal/metrics"
	"github.com/shpitdev/product-image-sampler/internal/util"
	"github.com/shpitdev/product-image-sampler/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	// A missing .env is fine; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "search":
		code = runSearch(ctx, os.Args[2:], os.Stdout)
	case "batch":
		code = runBatch(ctx, os.Args[2:])
	case "serve":
		code = runServe(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath  string
	logLevel    string
	logFormat   string
	target      int
	maxAttempts int
	rps         float64
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("SAMPLER_CONFIG"), "YAML config file (env: SAMPLER_CONFIG)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level override (env: LOG_LEVEL)")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format override: json|console (env: LOG_FORMAT)")
	fs.IntVar(&c.target, "target", 0, "Default target quality count override (env: TARGET_QUALITY_COUNT)")
	fs.IntVar(&c.maxAttempts, "max-attempts", 0, "Default max attempts override (env: MAX_ATTEMPTS)")
	fs.Float64Var(&c.rps, "rate-limit-rps", -1, "Global collaborator request rate, 0 disables (env: RATE_LIMIT_RPS)")
}

// load applies flags on top of file and environment configuration.
func (c *common) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.configPath, os.LookupEnv)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if c.target > 0 {
		cfg.Sampler.TargetQualityCount = c.target
	}
	if c.maxAttempts > 0 {
		cfg.Sampler.MaxAttempts = c.maxAttempts
	}
	if c.rps >= 0 {
		cfg.Enrich.RateLimitRPS = c.rps
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func configError(err error) int {
	_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
	return 2
}

func runSearch(ctx context.Context, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var c common
	c.register(fs)
	query := fs.String("query", "", "Search query (or pass it as the positional argument)")
	page := fs.String("page", "", "Result page (default from config)")
	country := fs.String("country", "", "Country code (default from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	q := strings.TrimSpace(*query)
	if q == "" {
		q = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}

	cfg, logger, err := c.load()
	if err != nil {
		return configError(err)
	}
	svc, err := app.NewFromConfig(ctx, cfg, logger, nil)
	if err != nil {
		return configError(err)
	}

	resp, err := svc.Search(ctx, app.Request{Query: q, Page: *page, Country: *country})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "search failed: %s\n", util.RedactSecrets(err.Error()))
		if app.IsInvalidInput(err) {
			return 2
		}
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "write response: %v\n", err)
		return 1
	}
	return 0
}

func runBatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var c common
	c.register(fs)
	inputPath := fs.String("input", "", "Input CSV file path (must include a 'query' column)")
	outputPath := fs.String("output", "", "Output CSV file path")
	failFast := fs.Bool("fail-fast", false, "Stop at the first failed query")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" || *outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "batch requires --input and --output")
		return 2
	}

	cfg, logger, err := c.load()
	if err != nil {
		return configError(err)
	}
	svc, err := app.NewFromConfig(ctx, cfg, logger, nil)
	if err != nil {
		return configError(err)
	}

	summary, err := app.RunBatchFiles(ctx, svc, *inputPath, *outputPath, *failFast)
	logger.Info().
		Int("queries", summary.Queries).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Msg("batch finished")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "batch run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "Listen address (env: PORT or LISTEN_ADDR, default :3000)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := c.load()
	if err != nil {
		return configError(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	m := metrics.New()
	svc, err := app.NewFromConfig(ctx, cfg, logger, m)
	if err != nil {
		return configError(err)
	}

	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.NewHandler(svc, m.Handler(), logger), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `sampler: adaptive product image sampler

Usage:
  sampler <command> [flags]

Commands:
  search   Run one search and print the JSON response
  batch    Run every query in a CSV file and write a result CSV
  serve    Serve POST /api/search, GET /healthz and GET /metrics
  version  Print the version

Examples:
  sampler search "wireless headphones"
  sampler batch --input queries.csv --output results.csv
  sampler serve --addr :3000

Environment (a .env file in the working directory is loaded first):
  RAPIDAPI_KEY          Product search API key (required)
  FIRECRAWL_API_KEY     Firecrawl API key (required for SCRAPE_BACKEND=firecrawl)
  SCRAPE_BACKEND        firecrawl (default) or html
  SELECTOR_BACKEND      llama (default) or gemini
  LLAMA_API_KEY         Llama API key (required for SELECTOR_BACKEND=llama)
  GEMINI_API_KEY        Gemini API key (required for SELECTOR_BACKEND=gemini)
  TARGET_QUALITY_COUNT  High-quality items to collect per search (default 2)
  MAX_ATTEMPTS          Candidates to enrich at most per search (default 6)
  PORT                  Listen port for serve (default 3000)
  LOG_LEVEL, LOG_FORMAT Logging (info, json)

`)
}
