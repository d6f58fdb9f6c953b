package results

import (
	"encoding/json"
)

// Item is one product in the search response. Product is the catalog
// record exactly as the provider returned it.
type Item struct {
	Product          json.RawMessage `json:"product"`
	Rank             int             `json:"rank"`
	Title            string          `json:"title,omitempty"`
	DetailURL        string          `json:"detailUrl,omitempty"`
	OriginalImageURL string          `json:"originalImageUrl,omitempty"`
	BetterImageURL   string          `json:"betterImageUrl"`
	ImageImproved    bool            `json:"imageImproved"`
	QualityScore     int             `json:"qualityScore"`
	QualityReasons   []string        `json:"qualityReasons"`
}

// Response is the payload returned for one search.
//
// OriginalCount is the number of candidates the catalog returned, so callers
// can tell "nothing found" apart from "found but nothing met the bar".
type Response struct {
	Products      []Item `json:"products"`
	OriginalCount int    `json:"originalCount"`
	ImprovedCount int    `json:"improvedCount"`
	Stats         Stats  `json:"stats"`
	RequestID     string `json:"requestId,omitempty"`
}

// NewResponse builds the response for an assembled run over originalCount candidates.
func NewResponse(requestID string, originalCount int, a Assembly) Response {
	products := make([]Item, 0, len(a.HighQuality))
	for _, e := range a.HighQuality {
		raw := e.Item.Raw
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}
		reasons := e.Outcome.QualityReasons
		if reasons == nil {
			reasons = []string{}
		}
		products = append(products, Item{
			Product:          raw,
			Rank:             e.Item.Rank,
			Title:            e.Item.Title,
			DetailURL:        e.Item.DetailRef,
			OriginalImageURL: e.Item.ImageRef,
			BetterImageURL:   e.Outcome.ImprovedImageRef,
			ImageImproved:    e.Outcome.Improved,
			QualityScore:     e.Outcome.QualityScore,
			QualityReasons:   reasons,
		})
	}
	return Response{
		Products:      products,
		OriginalCount: originalCount,
		ImprovedCount: a.Stats.ImprovedCount,
		Stats:         a.Stats,
		RequestID:     requestID,
	}
}
