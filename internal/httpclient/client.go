// Package httpclient holds the HTTP plumbing shared by the catalog, scraper
// and selector clients.
package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/product-image-sampler/internal/core"
)

// maxBodyBytes caps how much of an upstream response is read into memory.
const maxBodyBytes = 8 << 20

// New returns an *http.Client with the given timeout. caPath is optional and,
// when provided, replaces the system trust store.
func New(caPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CA bundle PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// ParseBaseURL normalizes raw into an absolute base URL whose path ends in "/",
// so relative references resolve beneath it. A missing scheme defaults to https.
func ParseBaseURL(raw string, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s base URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s base URL must include a host (got %q)", name, raw)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// Resolve joins relPath onto base.
func Resolve(base *url.URL, relPath string) *url.URL {
	rel := &url.URL{Path: strings.TrimPrefix(relPath, "/")}
	return base.ResolveReference(rel)
}

// Do sends req and returns the response body for 2xx responses.
//
// Non-2xx responses become an *HTTPError. 429 and 5xx responses, and network
// failures, are wrapped in core.TransientError so callers can retry them.
func Do(ctx context.Context, hc *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := hc.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TransientError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		herr := NewHTTPError(op, resp, b)
		if herr.Retryable() {
			return nil, &core.TransientError{Err: herr}
		}
		return nil, herr
	}
	return b, nil
}
