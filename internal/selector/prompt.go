// Package selector holds the prompt and reply parsing shared by the image
// selection backends.
package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shpitdev/product-image-sampler/internal/core"
)

// SystemPrompt is the system role message sent to chat-style models.
const SystemPrompt = "You are an assistant that selects the best product image from scraped webpage content."

// MaxContentBytes caps the page content embedded in a prompt.
const MaxContentBytes = 60_000

// ErrMalformedReply is returned when a reply has no parseable image_url object.
var ErrMalformedReply = errors.New("malformed image selection reply")

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// UserPrompt renders the user message for req.
func UserPrompt(req core.SelectRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is the link to the product: %s\n", strings.TrimSpace(req.DetailRef))
	if t := strings.TrimSpace(req.Title); t != "" {
		fmt.Fprintf(&b, "Here is the product title: %s\n", t)
	}
	fmt.Fprintf(&b, "Here is the markdown: %s\n\n", truncate(req.Content, MaxContentBytes))
	b.WriteString(`Find the main product image from the markdown above. Pick the most relevant image for the product.
Should be near the beginning of the markdown most of the time. If there is a size, then pick the image with the largest size.
If there is no product image, use "none" as the image_url.

RESPOND WITH ONLY THIS JSON FORMAT - NO OTHER TEXT:
{
    "image_url": "the_image_url_here"
}`)
	return b.String()
}

// ParseImageURL extracts image_url from the first {...} block in reply.
//
// It returns ErrNoCandidate when the model answered "none" or an empty
// string, and ErrMalformedReply for anything else that cannot be parsed.
func ParseImageURL(reply string) (string, error) {
	m := jsonObjectRe.FindString(reply)
	if m == "" {
		return "", fmt.Errorf("%w: no json object", ErrMalformedReply)
	}
	var parsed struct {
		ImageURL *string `json:"image_url"`
	}
	if err := json.Unmarshal([]byte(m), &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if parsed.ImageURL == nil {
		return "", fmt.Errorf("%w: missing image_url", ErrMalformedReply)
	}
	u := strings.TrimSpace(*parsed.ImageURL)
	if u == "" || strings.EqualFold(u, "none") || strings.EqualFold(u, "null") {
		return "", core.ErrNoCandidate
	}
	return u, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
