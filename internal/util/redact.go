package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Keep it broad: tokens show up
	// in logs via downstream libraries and HTTP error messages.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b((?:gemini|llama|firecrawl|rapidapi)?[_-]?api[_-]?key|x-rapidapi-key|key)\b\s*[:=]\s*[^\s"'&]+`)

	// Firecrawl keys are prefixed with "fc-".
	firecrawlKeyRe = regexp.MustCompile(`\bfc-[A-Za-z0-9]{16,}\b`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// Safe to call on any message, including upstream error strings and URLs.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = firecrawlKeyRe.ReplaceAllString(out, "<redacted>")
	return strings.TrimSpace(out)
}
