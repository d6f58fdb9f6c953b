package core

import (
	"context"
	"encoding/json"
	"errors"
)

// Item is one ranked product returned by the catalog search.
//
// Items are immutable once returned by a Catalog; enrichment results refer to
// them rather than copying them.
type Item struct {
	// Rank is the zero-based position in the provider's result list.
	Rank      int
	ID        string
	Title     string
	ImageRef  string
	DetailRef string

	// Raw is the provider record, passed through to callers untouched.
	Raw json.RawMessage
}

// SearchParams are the inputs to a catalog search.
type SearchParams struct {
	Query   string
	Page    string
	Country string
}

// Catalog searches the external product catalog.
type Catalog interface {
	Search(ctx context.Context, params SearchParams) ([]Item, error)
}

// Scraper fetches the content of a product detail page.
//
// Returning "" with a nil error is a valid "no content" outcome.
type Scraper interface {
	Scrape(ctx context.Context, detailRef string) (string, error)
}

// SelectRequest carries what the image selector needs to pick one image.
type SelectRequest struct {
	Content   string
	DetailRef string
	Title     string
}

// ImageSelector asks an inference endpoint for the single best product image.
//
// Implementations return ErrNoCandidate when the model answers "none".
type ImageSelector interface {
	SelectImage(ctx context.Context, req SelectRequest) (string, error)
}

// ErrNoCandidate reports that the selector found no usable image.
var ErrNoCandidate = errors.New("no candidate image")

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
