// Package source reads Postgres tables for snapshot runs: physical row
// scans, exact-locator fetches, relation metadata, and the transaction
// window shared with the change-capture daemon.
package source

import (
	"context"
	"fmt"

	"github.com/Hobby-Box/api-search-sync/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Relation is the table metadata a snapshot run needs: identity, primary
// key columns in index order, and the planner's row estimate.
type Relation struct {
	Schema      string
	Table       string
	PrimaryKeys []string
	RowEstimate int64
}

// Ident is the quoted form for SQL, e.g. "public"."users".
func (r *Relation) Ident() string {
	return pgx.Identifier{r.Schema, r.Table}.Sanitize()
}

func (r *Relation) String() string {
	return r.Schema + "." + r.Table
}

const primaryKeyQuery = `
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY array_position(i.indkey, a.attnum)`

const rowEstimateQuery = `
SELECT reltuples::bigint FROM pg_class WHERE oid = $1::regclass`

// Catalog looks up relations and caches them, since isolated dispatch
// modes open many sessions against the same few tables.
type Catalog struct {
	pool  *pgxpool.Pool
	cache *lru.Cache[string, *Relation]
	log   utils.Logger
}

func NewCatalog(pool *pgxpool.Pool, log utils.Logger) *Catalog {
	cache, _ := lru.New[string, *Relation](128)
	return &Catalog{pool: pool, cache: cache, log: log}
}

func (c *Catalog) Relation(ctx context.Context, schema, table string) (*Relation, error) {
	if schema == "" {
		schema = "public"
	}
	key := schema + "." + table
	if rel, ok := c.cache.Get(key); ok {
		return rel, nil
	}

	rel, err := c.load(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, rel)
	return rel, nil
}

func (c *Catalog) load(ctx context.Context, schema, table string) (*Relation, error) {
	rel := &Relation{Schema: schema, Table: table}

	rows, err := c.pool.Query(ctx, primaryKeyQuery, rel.Ident())
	if err != nil {
		return nil, fmt.Errorf("catalog: primary key of %s: %w", rel, err)
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("catalog: primary key of %s: %w", rel, err)
		}
		rel.PrimaryKeys = append(rel.PrimaryKeys, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: primary key of %s: %w", rel, err)
	}

	if err := c.pool.QueryRow(ctx, rowEstimateQuery, rel.Ident()).Scan(&rel.RowEstimate); err != nil {
		return nil, fmt.Errorf("catalog: row estimate of %s: %w", rel, err)
	}
	if rel.RowEstimate < 0 {
		// Never analyzed.
		rel.RowEstimate = 0
	}

	if len(rel.PrimaryKeys) == 0 {
		c.log.Warn("catalog: table has no primary key, documents will be content-keyed", "table", rel.String())
	}
	c.log.Debug("catalog: loaded relation",
		"table", rel.String(), "pk", rel.PrimaryKeys, "rows_estimate", rel.RowEstimate)
	return rel, nil
}
