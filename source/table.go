package source

import (
	"context"
	"fmt"
	"iter"

	"github.com/Hobby-Box/api-search-sync/doctree"
	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/Hobby-Box/api-search-sync/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table reads one relation over a shared connection pool. It satisfies
// the snapshot source contract: an ordered locator scan plus exact-
// locator row fetches. Scans use TID range scans, so the table needs a
// server new enough to plan `WHERE ctid > $1`.
type Table struct {
	pool *pgxpool.Pool
	rel  *Relation
	log  utils.Logger
}

func NewTable(pool *pgxpool.Pool, rel *Relation, log utils.Logger) *Table {
	return &Table{pool: pool, rel: rel, log: log}
}

func (t *Table) Relation() *Relation {
	return t.rel
}

// scanQuery lists locators in physical order. ONLY keeps partitioned
// children out of the parent's scan; each partition syncs on its own.
func scanQuery(rel *Relation, resume bool) string {
	q := "SELECT ctid FROM ONLY " + rel.Ident()
	if resume {
		q += " WHERE ctid > $1"
	}
	return q + " ORDER BY ctid"
}

func fetchQuery(rel *Relation) string {
	return "SELECT ctid, * FROM ONLY " + rel.Ident() + " WHERE ctid = ANY($1)"
}

func pgTID(t tid.TID) pgtype.TID {
	return pgtype.TID{BlockNumber: t.Page(), OffsetNumber: t.Row(), Valid: true}
}

func pgTIDs(ids []tid.TID) []pgtype.TID {
	out := make([]pgtype.TID, len(ids))
	for i, id := range ids {
		out[i] = pgTID(id)
	}
	return out
}

// ScanTIDs streams the table's locators in ascending physical order,
// strictly after the given position when it is non-zero. The pool
// connection stays held for the life of the iteration, so consumers
// that also query the pool need headroom in its size.
func (t *Table) ScanTIDs(ctx context.Context, after tid.TID) iter.Seq2[tid.TID, error] {
	return func(yield func(tid.TID, error) bool) {
		var (
			rows pgx.Rows
			err  error
		)
		if after.IsZero() {
			rows, err = t.pool.Query(ctx, scanQuery(t.rel, false))
		} else {
			rows, err = t.pool.Query(ctx, scanQuery(t.rel, true), pgTID(after))
		}
		if err != nil {
			yield(tid.Zero, fmt.Errorf("scan %s: %w", t.rel, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var ct pgtype.TID
			if err := rows.Scan(&ct); err != nil {
				yield(tid.Zero, fmt.Errorf("scan %s: %w", t.rel, err))
				return
			}
			if !yield(tid.Make(ct.BlockNumber, ct.OffsetNumber), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(tid.Zero, fmt.Errorf("scan %s: %w", t.rel, err))
		}
	}
}

// FetchRows re-reads the rows at the given locators. Locators vacated by
// vacuum or deletes since the scan just come back absent; the capture
// side owns those rows' fate.
func (t *Table) FetchRows(ctx context.Context, ids []tid.TID) ([]doctree.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := t.pool.Query(ctx, fetchQuery(t.rel), pgTIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.rel, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]doctree.Row, 0, len(ids))
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", t.rel, err)
		}

		ct, ok := vals[0].(pgtype.TID)
		if !ok || !ct.Valid {
			return nil, fmt.Errorf("fetch %s: row came back without a ctid", t.rel)
		}

		m := make(map[string]any, len(fields)-1)
		for i := 1; i < len(fields); i++ {
			m[fields[i].Name] = Normalize(vals[i])
		}
		out = append(out, doctree.Row{
			TID:    tid.Make(ct.BlockNumber, ct.OffsetNumber),
			Values: m,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.rel, err)
	}

	if len(out) < len(ids) {
		t.log.Debug("fetch: rows vanished since scan",
			"table", t.rel.String(), "asked", len(ids), "got", len(out))
	}
	return out, nil
}
