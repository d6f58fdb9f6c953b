// Package mockcatalog is an in-process fake of every upstream the sampler
// talks to: the product search API, the Firecrawl scrape API, plain product
// pages and an OpenAI-compatible chat completions endpoint.
//
// Product detail links point back at the server itself, so a full search can
// run against it without network access.
package mockcatalog

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Product is a fixture served by the search endpoint.
type Product struct {
	ID       string
	Title    string
	ImageURL string

	// PageImageURL is the image shown on the product's detail page. Empty
	// means the page has no image.
	PageImageURL string

	// NoLink omits the link field from the search record.
	NoLink bool
	// ScrapeFails makes scrapes of this product's page return 500.
	ScrapeFails bool
}

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

type Server struct {
	mu       sync.Mutex
	calls    []Call
	products map[string][]Product
	byID     map[string]Product

	defaultCount int
	searchStatus int
	apiKey       string
}

// New returns a server that answers unknown queries with defaultCount
// generated products.
func New(defaultCount int) *Server {
	return &Server{
		products:     make(map[string][]Product),
		byID:         make(map[string]Product),
		defaultCount: defaultCount,
	}
}

// SetProducts registers the products returned for query.
func (s *Server) SetProducts(query string, products []Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[strings.ToLower(strings.TrimSpace(query))] = products
	for _, p := range products {
		s.byID[p.ID] = p
	}
}

// FailSearch makes the search endpoint answer with status. Zero restores normal behavior.
func (s *Server) FailSearch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchStatus = status
}

// RequireAPIKey enforces x-rapidapi-key on search and Bearer auth on scrape
// and chat. Empty disables checks.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls hit path.
func (s *Server) CallCount(path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/google/shopping", s.handleSearch)
	mux.HandleFunc("POST /v1/scrape", s.handleScrape)
	mux.HandleFunc("GET /products/{id}", s.handlePage)
	mux.HandleFunc("POST /chat/completions", s.handleChat)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	return mux
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorized(r *http.Request, header, prefix string) bool {
	s.mu.Lock()
	key := s.apiKey
	s.mu.Unlock()
	return key == "" || r.Header.Get(header) == prefix+key
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorized(r, "x-rapidapi-key", "") {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "You are not subscribed to this API."})
		return
	}
	s.mu.Lock()
	status := s.searchStatus
	s.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"message": "search unavailable"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid form"})
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.PostForm.Get("query")))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "query is required"})
		return
	}

	products := s.productsFor(query)
	base := "http://" + r.Host
	records := make([]map[string]any, 0, len(products))
	for i, p := range products {
		rec := map[string]any{
			"product_id": p.ID,
			"title":      p.Title,
			"imageUrl":   p.ImageURL,
			"price":      fmt.Sprintf("$%d.99", 10+i),
			"source":     "Mock Store",
			"position":   i + 1,
		}
		if !p.NoLink {
			rec["link"] = base + "/products/" + url.PathEscape(p.ID)
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": records})
}

func (s *Server) productsFor(query string) []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.products[query]; ok {
		return ps
	}
	out := make([]Product, 0, s.defaultCount)
	for i := 0; i < s.defaultCount; i++ {
		id := fmt.Sprintf("%s-%d", strings.ReplaceAll(query, " ", "-"), i)
		p := Product{
			ID:           id,
			Title:        fmt.Sprintf("%s #%d", query, i+1),
			ImageURL:     fmt.Sprintf("https://encrypted-tbn0.gstatic.com/shopping?q=tbn:%s", id),
			PageImageURL: fmt.Sprintf("https://cdn.example.com/products/%s_1200x1200.jpg", id),
		}
		s.byID[id] = p
		out = append(out, p)
	}
	return out
}

func (s *Server) product(id string) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	p, ok := s.product(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if p.ScrapeFails {
		http.Error(w, "upstream error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, renderPage(p))
}

func renderPage(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!doctype html><html><head><title>%s</title></head><body>", html.EscapeString(p.Title))
	b.WriteString(`<header><img src="/static/logo.png" alt="Mock Store"></header><main>`)
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(p.Title))
	if p.PageImageURL != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="%s">`, html.EscapeString(p.PageImageURL), html.EscapeString(p.Title))
	}
	b.WriteString("<p>Product description.</p></main></body></html>")
	return b.String()
}

func renderMarkdown(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	if p.PageImageURL != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", p.Title, p.PageImageURL)
	}
	b.WriteString("Product description.\n")
	return b.String()
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorized(r, "Authorization", "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized: Invalid token"})
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "url is required"})
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid url"})
		return
	}
	id := strings.TrimPrefix(u.Path, "/products/")
	p, ok := s.product(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "page not found"})
		return
	}
	if p.ScrapeFails {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "scrape failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"markdown": renderMarkdown(p),
			"metadata": map[string]any{"sourceURL": req.URL, "statusCode": 200},
		},
	})
}

var markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\((\S+?)\)`)

// handleChat answers with the first markdown image in the last user message,
// or "none" when there is no image.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorized(r, "Authorization", "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"}})
		return
	}
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "invalid json"}})
		return
	}

	var prompt string
	for _, m := range req.Messages {
		if m.Role != "user" {
			continue
		}
		var text string
		if json.Unmarshal(m.Content, &text) == nil {
			prompt = text
		}
	}
	imageURL := "none"
	if m := markdownImageRe.FindStringSubmatch(prompt); m != nil {
		imageURL = m[1]
	}
	reply, _ := json.Marshal(map[string]string{"image_url": imageURL})

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": 0,
		"model":   req.Model,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": "```json\n" + string(reply) + "\n```",
			},
		}},
	})
}
