package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/product-image-sampler/internal/core"
	"github.com/shpitdev/product-image-sampler/internal/httpclient"
)

func TestParseBaseURL(t *testing.T) {
	t.Parallel()

	u, err := httpclient.ParseBaseURL("api.example.com/v1?x=1", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.String() != "https://api.example.com/v1/" {
		t.Fatalf("got %q", u.String())
	}
	if got := httpclient.Resolve(u, "/scrape").String(); got != "https://api.example.com/v1/scrape" {
		t.Fatalf("resolve=%q", got)
	}

	if _, err := httpclient.ParseBaseURL("  ", "test"); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}

func TestNew_RejectsBadCABundle(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(p, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := httpclient.New(p, time.Second); err == nil {
		t.Fatalf("expected error for invalid PEM")
	}
	if _, err := httpclient.New(filepath.Join(t.TempDir(), "missing.pem"), time.Second); err == nil {
		t.Fatalf("expected error for missing file")
	}
	hc, err := httpclient.New("", 0)
	if err != nil || hc.Timeout != 60*time.Second {
		t.Fatalf("default client: %v timeout=%s", err, hc.Timeout)
	}
}

func TestDo_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		wantMsg   string
	}{
		{name: "rate limited", status: 429, body: `{"message":"Too many requests"}`, transient: true, wantMsg: "Too many requests"},
		{name: "server error", status: 502, body: `<html>bad gateway</html>`, transient: true, wantMsg: "bad gateway"},
		{name: "unauthorized", status: 401, body: `{"success":false,"error":"Unauthorized: invalid token"}`, wantMsg: "invalid token"},
		{name: "leaks key", status: 403, body: `forbidden x-rapidapi-key: abc123`, wantMsg: "<redacted_kv>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			_, err := httpclient.Do(context.Background(), srv.Client(), req, "op")
			if err == nil {
				t.Fatalf("expected error")
			}
			var te *core.TransientError
			if errors.As(err, &te) != tt.transient {
				t.Fatalf("transient=%t want %t (%v)", !tt.transient, tt.transient, err)
			}
			var he *httpclient.HTTPError
			if !errors.As(err, &he) || he.StatusCode != tt.status {
				t.Fatalf("expected HTTPError with status %d, got %v", tt.status, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q missing %q", err.Error(), tt.wantMsg)
			}
			if strings.Contains(err.Error(), "abc123") {
				t.Fatalf("error leaks secret: %q", err.Error())
			}
		})
	}
}

func TestDo_OK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	b, err := httpclient.Do(context.Background(), srv.Client(), req, "op")
	if err != nil || string(b) != "ok" {
		t.Fatalf("got %q, %v", b, err)
	}
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	_, err := httpclient.Do(context.Background(), http.DefaultClient, req, "op")
	var te *core.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
