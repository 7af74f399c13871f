package source

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/utils"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	txid int64
}

func (r stubRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.txid
	return nil
}

type stubQuerier struct {
	txid int64
}

func (q stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return stubRow{txid: q.txid}
}

func TestReplicationWindow(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	log := utils.NewDefaultLogger(slog.LevelDebug)
	rep := NewReplication(stubQuerier{txid: 4200}, store, "appdbusers", log)
	ctx := context.Background()

	// Fresh pair: no lower horizon yet.
	txmin, err := rep.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Zero(t, txmin)

	txmax, err := rep.SnapshotTxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), txmax)

	// Replay advances the shared checkpoint to the window's top.
	require.NoError(t, rep.Replay(ctx, txmin, txmax))

	txmin, err = rep.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), txmin)
}
