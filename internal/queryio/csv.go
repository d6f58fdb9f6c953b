// Package queryio reads search queries for batch mode.
package queryio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Query is one row of a batch input file.
type Query struct {
	Query   string
	Page    string
	Country string
}

// ReadQueriesCSV reads a CSV file with a required "query" column and optional
// "page" and "country" columns. Header matching is case-insensitive and blank
// queries are skipped.
func ReadQueriesCSV(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{"query": -1, "page": -1, "country": -1}
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if j, ok := idx[name]; ok && j < 0 {
			idx[name] = i
		}
	}
	if idx["query"] < 0 {
		return nil, fmt.Errorf("missing required column %q", "query")
	}

	get := func(rec []string, col string) string {
		i := idx[col]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Query
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		q := Query{Query: get(rec, "query"), Page: get(rec, "page"), Country: get(rec, "country")}
		if q.Query == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
