package snapshot

import (
	"context"
	"fmt"
)

// processUnit runs one unit end to end: fetch the rows it names, render
// them, push the batch to the index. Returns the number of documents
// written. Rows that vanished between scan and fetch simply shrink the
// batch; the unit still succeeds and the checkpoint may advance past
// them, the capture side owns deletions.
func processUnit(ctx context.Context, ses *Session, index string, u *Unit) (int, error) {
	rows, err := ses.Source.FetchRows(ctx, u.TIDs)
	if err != nil {
		return 0, fmt.Errorf("unit %d: fetch: %w", u.Seq, err)
	}

	docs, err := ses.Builder.Build(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("unit %d: render: %w", u.Seq, err)
	}

	if len(docs) == 0 {
		return 0, nil
	}
	if err := ses.Bulker.Bulk(ctx, index, docs); err != nil {
		return 0, fmt.Errorf("unit %d: bulk: %w", u.Seq, err)
	}
	return len(docs), nil
}
