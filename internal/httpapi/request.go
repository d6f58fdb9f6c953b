package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/app"
)

// flexValue accepts a JSON string or number.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number")
	}
	*f = flexValue(n.String())
	return nil
}

type searchBody struct {
	Query              flexValue `json:"query"`
	Page               flexValue `json:"page"`
	Country            flexValue `json:"country"`
	TargetQualityCount flexValue `json:"targetQualityCount"`
	MaxAttempts        flexValue `json:"maxAttempts"`
}

// decodeSearchRequest reads a JSON body, or form fields for any other content type.
func decodeSearchRequest(r *http.Request) (app.Request, error) {
	var body searchBody

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return app.Request{}, fmt.Errorf("invalid JSON body: %s", err.Error())
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return app.Request{}, fmt.Errorf("invalid form body")
		}
		body = searchBody{
			Query:              flexValue(r.Form.Get("query")),
			Page:               flexValue(r.Form.Get("page")),
			Country:            flexValue(r.Form.Get("country")),
			TargetQualityCount: flexValue(r.Form.Get("targetQualityCount")),
			MaxAttempts:        flexValue(r.Form.Get("maxAttempts")),
		}
	}

	target, err := optionalInt("targetQualityCount", body.TargetQualityCount)
	if err != nil {
		return app.Request{}, err
	}
	attempts, err := optionalInt("maxAttempts", body.MaxAttempts)
	if err != nil {
		return app.Request{}, err
	}
	return app.Request{
		Query:              string(body.Query),
		Page:               strings.TrimSpace(string(body.Page)),
		Country:            strings.TrimSpace(string(body.Country)),
		TargetQualityCount: target,
		MaxAttempts:        attempts,
	}, nil
}

func optionalInt(name string, v flexValue) (*int, error) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", app.ErrInvalidOverride, name)
	}
	return &n, nil
}
