package results

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// Header returns the stable column order written by WriteCSV.
func Header() []string {
	return []string{
		"query",
		"request_id",
		"rank",
		"title",
		"detail_url",
		"original_image_url",
		"better_image_url",
		"image_improved",
		"quality_score",
		"quality_reasons",
		"stop_reason",
	}
}

// Row is one output line in batch mode.
type Row struct {
	Query      string
	RequestID  string
	StopReason string
	Item       Item
}

// RowsFor flattens a response into one row per returned product.
func RowsFor(query string, resp Response) []Row {
	rows := make([]Row, 0, len(resp.Products))
	for _, it := range resp.Products {
		rows = append(rows, Row{
			Query:      query,
			RequestID:  resp.RequestID,
			StopReason: resp.Stats.StopReason,
			Item:       it,
		})
	}
	return rows
}

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Query,
			r.RequestID,
			strconv.Itoa(r.Item.Rank),
			r.Item.Title,
			r.Item.DetailURL,
			r.Item.OriginalImageURL,
			r.Item.BetterImageURL,
			strconv.FormatBool(r.Item.ImageImproved),
			strconv.Itoa(r.Item.QualityScore),
			strings.Join(r.Item.QualityReasons, "; "),
			r.StopReason,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
