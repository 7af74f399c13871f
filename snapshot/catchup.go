package snapshot

import (
	"context"
	"fmt"
)

// captureBounds reads the transaction window for a run: txmin is what the
// capture side already replayed through, txmax is the database's horizon
// right now. Captured once before the scan starts and held constant, so
// every worker and the final replay agree on the same window.
func (s *Syncer) captureBounds(ctx context.Context) (Bounds, error) {
	txmin, err := s.opts.Replayer.Checkpoint(ctx)
	if err != nil {
		return Bounds{}, fmt.Errorf("capture txmin: %w", err)
	}
	txmax, err := s.opts.Replayer.SnapshotTxID(ctx)
	if err != nil {
		return Bounds{}, fmt.Errorf("capture txmax: %w", err)
	}
	return Bounds{Txmin: txmin, Txmax: txmax}, nil
}

// catchUp runs the one replay pass that absorbs writes committed while
// the partitioned phase was running. Runs exactly once per exhausted
// stream, never after an aborted one.
func (s *Syncer) catchUp(ctx context.Context, b Bounds) error {
	s.log.InfoCtx(ctx, "snapshot: catch-up", "txmin", b.Txmin, "txmax", b.Txmax)

	if err := s.opts.Replayer.Replay(ctx, b.Txmin, b.Txmax); err != nil {
		return fmt.Errorf("catch-up (%d,%d]: %w", b.Txmin, b.Txmax, err)
	}

	CatchupTxMax.WithLabelValues(s.opts.Database, s.opts.Index).Set(float64(b.Txmax))
	return nil
}
