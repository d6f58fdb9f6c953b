package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides fields from environment variables. Unset or blank
// variables leave the current value alone.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("RAPIDAPI_KEY", &c.Catalog.APIKey)
	e.str("RAPIDAPI_HOST", &c.Catalog.Host)
	e.str("RAPIDAPI_BASE_URL", &c.Catalog.BaseURL)
	e.duration("CATALOG_TIMEOUT", &c.Catalog.Timeout)

	e.str("SCRAPE_BACKEND", &c.Scrape.Backend)
	e.str("FIRECRAWL_API_KEY", &c.Scrape.Firecrawl.APIKey)
	e.str("FIRECRAWL_BASE_URL", &c.Scrape.Firecrawl.BaseURL)

	e.str("SELECTOR_BACKEND", &c.Selector.Backend)
	e.str("LLAMA_API_KEY", &c.Selector.Llama.APIKey)
	e.str("LLAMA_MODEL", &c.Selector.Llama.Model)
	e.str("LLAMA_BASE_URL", &c.Selector.Llama.BaseURL)
	e.str("GEMINI_API_KEY", &c.Selector.Gemini.APIKey)
	e.str("GEMINI_MODEL", &c.Selector.Gemini.Model)
	e.str("GEMINI_BASE_URL", &c.Selector.Gemini.BaseURL)

	e.int("TARGET_QUALITY_COUNT", &c.Sampler.TargetQualityCount)
	e.int("MAX_ATTEMPTS", &c.Sampler.MaxAttempts)
	e.int("MAX_ATTEMPTS_LIMIT", &c.Sampler.MaxAttemptsLimit)

	e.duration("SCRAPE_TIMEOUT", &c.Enrich.ScrapeTimeout)
	e.duration("SELECT_TIMEOUT", &c.Enrich.SelectTimeout)
	e.int("MAX_RETRIES", &c.Enrich.MaxRetries)
	e.float("RATE_LIMIT_RPS", &c.Enrich.RateLimitRPS)

	if port, ok := e.get("PORT"); ok {
		if _, err := strconv.Atoi(port); err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid PORT=%q: %w", port, err))
		} else {
			c.Server.Addr = ":" + port
		}
	}
	e.str("LISTEN_ADDR", &c.Server.Addr)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.str("DEFAULT_CA_PATH", &c.CAPath)

	c.Scrape.Backend = strings.ToLower(c.Scrape.Backend)
	c.Selector.Backend = strings.ToLower(c.Selector.Backend)
	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return
	}
	*dst = out
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return
	}
	*dst = out
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return
	}
	*dst = out
}
