package snapshot

import (
	"context"
	"iter"

	"github.com/Hobby-Box/api-search-sync/doctree"
	"github.com/Hobby-Box/api-search-sync/tid"
)

// Source reads one table. Implementations wrap a database connection
// bound to a single relation.
type Source interface {
	// ScanTIDs yields row locators in physical order. When after is
	// non-zero only locators strictly greater than it, by (page,row)
	// order, are yielded.
	ScanTIDs(ctx context.Context, after tid.TID) iter.Seq2[tid.TID, error]

	// FetchRows re-reads the rows at exactly the given locators. A
	// locator whose row vanished between scan and fetch is skipped, so
	// the result may be shorter than the request.
	FetchRows(ctx context.Context, tids []tid.TID) ([]doctree.Row, error)
}

// Bulker applies one batch of documents to a search index. Applying the
// same batch twice must leave the index unchanged, keyed on document id.
type Bulker interface {
	Bulk(ctx context.Context, index string, docs []doctree.Document) error
}

// Replayer is the change-capture side of a sync pair. The snapshot run
// brackets itself between the replayer's last applied transaction and the
// database's current horizon, then hands that window over for replay.
type Replayer interface {
	// Checkpoint returns the transaction id replayed through so far.
	// Zero means the capture side has never run.
	Checkpoint(ctx context.Context) (int64, error)

	// SnapshotTxID returns the database's current transaction horizon.
	SnapshotTxID(ctx context.Context) (int64, error)

	// Replay applies row events recorded in (txmin, txmax].
	Replay(ctx context.Context, txmin, txmax int64) error
}

// Bounds is the transaction window captured once at the start of a run
// and held constant for its whole duration.
type Bounds struct {
	Txmin int64 // 0 = no lower horizon
	Txmax int64
}

// Session bundles the per-worker collaborators: a table reader, a
// document builder, and an index writer. Depending on the dispatch mode
// one session serves the whole run or each worker gets its own.
type Session struct {
	Source  Source
	Builder doctree.Builder
	Bulker  Bulker

	// OnClose releases whatever the factory opened, typically the
	// database connection. Nil is fine.
	OnClose func() error
}

func (s *Session) Close() error {
	if s.OnClose != nil {
		return s.OnClose()
	}
	return nil
}

// SessionFactory opens a fresh session. Isolated dispatch modes call it
// once per worker or per unit, so it must be safe to call concurrently.
type SessionFactory func(ctx context.Context) (*Session, error)
