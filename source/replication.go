package source

import (
	"context"
	"fmt"

	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/utils"
	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Replication is the change-capture half of a sync pair as the snapshot
// run sees it. The capture daemon runs out of process; the two sides
// meet at the shared transaction-id checkpoint file. Replay here records
// the window and advances that file, which is the daemon's cue for where
// the snapshot left off.
type Replication struct {
	db    rowQuerier
	store *checkpoint.Store
	name  string
	log   utils.Logger
}

func NewReplication(db rowQuerier, store *checkpoint.Store, name string, log utils.Logger) *Replication {
	return &Replication{db: db, store: store, name: name, log: log}
}

// Checkpoint is the transaction id the capture side has applied through.
// Zero when it has never run.
func (r *Replication) Checkpoint(ctx context.Context) (int64, error) {
	txid, ok, err := r.store.ReadTxID(r.name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return txid, nil
}

// SnapshotTxID is the database's current transaction horizon.
func (r *Replication) SnapshotTxID(ctx context.Context) (int64, error) {
	var txid int64
	if err := r.db.QueryRow(ctx, "SELECT txid_current()").Scan(&txid); err != nil {
		return 0, fmt.Errorf("replication: current txid: %w", err)
	}
	return txid, nil
}

// Replay hands the window over to the capture daemon by advancing the
// shared checkpoint to txmax. Events inside the window are the daemon's
// to apply; events after it reach the index through its normal feed.
func (r *Replication) Replay(ctx context.Context, txmin, txmax int64) error {
	r.log.InfoCtx(ctx, "replication: handing window to capture", "txmin", txmin, "txmax", txmax)
	if err := r.store.SaveTxID(r.name, txmax); err != nil {
		return fmt.Errorf("replication: advance txid checkpoint: %w", err)
	}
	return nil
}
