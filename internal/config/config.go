// Package config loads runtime configuration from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/product-image-sampler/internal/catalog"
	"github.com/shpitdev/product-image-sampler/internal/quality"
	"github.com/shpitdev/product-image-sampler/internal/sampler"
	"github.com/shpitdev/product-image-sampler/internal/scrape/firecrawl"
	"github.com/shpitdev/product-image-sampler/internal/selector/gemini"
	"github.com/shpitdev/product-image-sampler/internal/selector/llama"
)

// Scrape and selector backends.
const (
	ScrapeFirecrawl = "firecrawl"
	ScrapeHTML      = "html"

	SelectorLlama  = "llama"
	SelectorGemini = "gemini"
)

// DefaultMaxAttemptsLimit caps per-request maxAttempts overrides.
const DefaultMaxAttemptsLimit = 20

type Config struct {
	Sampler  Sampler  `yaml:"sampler"`
	Enrich   Enrich   `yaml:"enrich"`
	Catalog  Catalog  `yaml:"catalog"`
	Scrape   Scrape   `yaml:"scrape"`
	Selector Selector `yaml:"selector"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`

	// CAPath is an optional PEM bundle trusted for outbound TLS.
	CAPath string `yaml:"ca_path"`
}

type Sampler struct {
	TargetQualityCount int `yaml:"target_quality_count"`
	MaxAttempts        int `yaml:"max_attempts"`
	MaxAttemptsLimit   int `yaml:"max_attempts_limit"`
	AdmissionThreshold int `yaml:"admission_threshold"`
}

type Enrich struct {
	ScrapeTimeout     time.Duration `yaml:"scrape_timeout"`
	SelectTimeout     time.Duration `yaml:"select_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	BackoffJitterFrac float64       `yaml:"backoff_jitter_frac"`
}

type Catalog struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Host           string        `yaml:"host"`
	Timeout        time.Duration `yaml:"timeout"`
	DefaultCountry string        `yaml:"default_country"`
	DefaultPage    string        `yaml:"default_page"`
}

type Scrape struct {
	Backend   string    `yaml:"backend"`
	Firecrawl Firecrawl `yaml:"firecrawl"`
	UserAgent string    `yaml:"user_agent"`
}

type Firecrawl struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type Selector struct {
	Backend string `yaml:"backend"`
	Llama   Model  `yaml:"llama"`
	Gemini  Model  `yaml:"gemini"`
}

type Model struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sampler: Sampler{
			TargetQualityCount: sampler.DefaultTargetQualityCount,
			MaxAttempts:        sampler.DefaultMaxAttempts,
			MaxAttemptsLimit:   DefaultMaxAttemptsLimit,
			AdmissionThreshold: quality.AdmissionThreshold,
		},
		Enrich: Enrich{
			ScrapeTimeout:     30 * time.Second,
			SelectTimeout:     30 * time.Second,
			MaxRetries:        1,
			BackoffInitial:    200 * time.Millisecond,
			BackoffMax:        2 * time.Second,
			BackoffJitterFrac: 0.2,
		},
		Catalog: Catalog{
			BaseURL:        catalog.DefaultBaseURL,
			Host:           catalog.DefaultHost,
			Timeout:        20 * time.Second,
			DefaultCountry: catalog.DefaultCountry,
			DefaultPage:    catalog.DefaultPage,
		},
		Scrape: Scrape{
			Backend:   ScrapeFirecrawl,
			Firecrawl: Firecrawl{BaseURL: firecrawl.DefaultBaseURL},
		},
		Selector: Selector{
			Backend: SelectorLlama,
			Llama:   Model{Model: llama.DefaultModel, BaseURL: llama.DefaultBaseURL},
			Gemini:  Model{Model: gemini.DefaultModel},
		},
		Server: Server{
			Addr:            ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides from lookup. The result is validated.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config YAML: %w", err)
	}
	return nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	var errs []error
	s := c.Sampler
	if s.TargetQualityCount < 1 {
		errs = append(errs, fmt.Errorf("sampler.target_quality_count must be >= 1 (got %d)", s.TargetQualityCount))
	}
	if s.MaxAttempts < s.TargetQualityCount {
		errs = append(errs, fmt.Errorf("sampler.max_attempts must be >= target_quality_count (got %d < %d)", s.MaxAttempts, s.TargetQualityCount))
	}
	if s.MaxAttemptsLimit < 1 {
		errs = append(errs, fmt.Errorf("sampler.max_attempts_limit must be >= 1 (got %d)", s.MaxAttemptsLimit))
	}
	if s.MaxAttempts > s.MaxAttemptsLimit {
		errs = append(errs, fmt.Errorf("sampler.max_attempts must be <= max_attempts_limit (got %d > %d)", s.MaxAttempts, s.MaxAttemptsLimit))
	}
	if s.AdmissionThreshold < 0 || s.AdmissionThreshold > quality.MaxScore {
		errs = append(errs, fmt.Errorf("sampler.admission_threshold must be within [0,%d] (got %d)", quality.MaxScore, s.AdmissionThreshold))
	}
	if c.Enrich.ScrapeTimeout <= 0 || c.Enrich.SelectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("enrich timeouts must be > 0"))
	}
	if c.Enrich.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("enrich.max_retries must be >= 0"))
	}
	if c.Enrich.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("enrich.rate_limit_rps must be >= 0"))
	}
	switch c.Scrape.Backend {
	case ScrapeFirecrawl, ScrapeHTML:
	default:
		errs = append(errs, fmt.Errorf("scrape.backend must be %q or %q (got %q)", ScrapeFirecrawl, ScrapeHTML, c.Scrape.Backend))
	}
	switch c.Selector.Backend {
	case SelectorLlama, SelectorGemini:
	default:
		errs = append(errs, fmt.Errorf("selector.backend must be %q or %q (got %q)", SelectorLlama, SelectorGemini, c.Selector.Backend))
	}
	return errors.Join(errs...)
}

// RequireCredentials reports missing API keys for the configured backends.
// It is separate from Validate so that offline commands can run without keys.
func (c Config) RequireCredentials() error {
	var errs []error
	if strings.TrimSpace(c.Catalog.APIKey) == "" {
		errs = append(errs, fmt.Errorf("RAPIDAPI_KEY is required"))
	}
	if c.Scrape.Backend == ScrapeFirecrawl && strings.TrimSpace(c.Scrape.Firecrawl.APIKey) == "" {
		errs = append(errs, fmt.Errorf("FIRECRAWL_API_KEY is required for scrape backend %q", ScrapeFirecrawl))
	}
	switch c.Selector.Backend {
	case SelectorLlama:
		if strings.TrimSpace(c.Selector.Llama.APIKey) == "" {
			errs = append(errs, fmt.Errorf("LLAMA_API_KEY is required for selector backend %q", SelectorLlama))
		}
	case SelectorGemini:
		if strings.TrimSpace(c.Selector.Gemini.APIKey) == "" {
			errs = append(errs, fmt.Errorf("GEMINI_API_KEY is required for selector backend %q", SelectorGemini))
		}
	}
	return errors.Join(errs...)
}
