package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/shpitdev/product-image-sampler/internal/queryio"
	"github.com/shpitdev/product-image-sampler/internal/results"
	"github.com/shpitdev/product-image-sampler/internal/util"
)

// BatchSummary counts what a batch run did.
type BatchSummary struct {
	Queries int
	Failed  int
	Rows    int
}

// RunBatch runs one search per query in input, sequentially, and writes every
// returned product as a CSV row to output.
//
// A failed query is logged and skipped unless failFast is set.
func RunBatch(ctx context.Context, svc *Service, input io.Reader, output io.Writer, failFast bool) (BatchSummary, error) {
	queries, err := queryio.ReadQueriesCSV(input)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("read queries: %w", err)
	}

	var (
		summary BatchSummary
		rows    []results.Row
	)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Queries++

		resp, err := svc.Search(ctx, Request{Query: q.Query, Page: q.Page, Country: q.Country})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.Failed++
			svc.logger.Warn().
				Str("query", q.Query).
				Str("error", util.RedactSecrets(err.Error())).
				Msg("batch query failed")
			if failFast {
				return summary, fmt.Errorf("query %q: %w", q.Query, err)
			}
			continue
		}
		qrows := results.RowsFor(q.Query, resp)
		rows = append(rows, qrows...)
		summary.Rows += len(qrows)
	}

	if err := results.WriteCSV(output, rows); err != nil {
		return summary, fmt.Errorf("write results: %w", err)
	}
	return summary, nil
}

// RunBatchFiles is RunBatch over files on disk.
func RunBatchFiles(ctx context.Context, svc *Service, inputPath, outputPath string, failFast bool) (BatchSummary, error) {
	inF, err := os.Open(inputPath)
	if err != nil {
		return BatchSummary{}, err
	}
	defer func() {
		_ = inF.Close()
	}()

	outF, err := os.Create(outputPath)
	if err != nil {
		return BatchSummary{}, err
	}
	defer func() {
		_ = outF.Close()
	}()

	summary, err := RunBatch(ctx, svc, inF, outF, failFast)
	if err != nil {
		return summary, err
	}
	return summary, outF.Close()
}
