// Package searchsync ties one sync definition to a running snapshot: it
// owns the database pool, resolves the relation, hands out sessions and
// drives the run. The command line and the console both sit on top of it.
package searchsync

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/config"
	"github.com/Hobby-Box/api-search-sync/doctree"
	"github.com/Hobby-Box/api-search-sync/snapshot"
	"github.com/Hobby-Box/api-search-sync/source"
	"github.com/Hobby-Box/api-search-sync/utils"
)

// Job is one definition ready to run. Target and Store are shared with
// the caller; the database pool is the job's own.
type Job struct {
	Def config.Definition

	// Target receives the rendered documents.
	Target snapshot.Bulker

	// Store holds the checkpoint files for resume and catch-up.
	Store *checkpoint.Store

	Mode      snapshot.Mode
	Nprocs    int
	BlockSize int

	Log utils.Logger
}

// Run connects, resolves the table and executes one snapshot pass. The
// pool is sized one connection per worker plus one held by the locator
// scan and one spare for catalog and txid queries.
func (j *Job) Run(ctx context.Context) (*snapshot.Report, error) {
	log := j.Log
	if log == nil {
		log = utils.NewDefaultLogger(slog.LevelInfo)
	}
	nprocs := j.Nprocs
	if nprocs <= 0 {
		nprocs = 2 * runtime.NumCPU()
	}

	cfg, err := pgxpool.ParseConfig(j.Def.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn of %s: %w", j.Def.Name, err)
	}
	cfg.MaxConns = int32(nprocs + 2)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", j.Def.Name, err)
	}
	defer pool.Close()

	catalog := source.NewCatalog(pool, log)
	rel, err := catalog.Relation(ctx, j.Def.Schema, j.Def.Table)
	if err != nil {
		return nil, err
	}
	if len(j.Def.PrimaryKey) > 0 {
		// Leave the cached relation alone.
		r := *rel
		r.PrimaryKeys = j.Def.PrimaryKey
		rel = &r
	}
	log.InfoCtx(ctx, "sync: table resolved",
		"database", j.Def.Name, "table", rel.String(), "pk", rel.PrimaryKeys,
		"rows_estimate", rel.RowEstimate)

	builder := doctree.NewFlat(rel.PrimaryKeys)
	sessions := func(context.Context) (*snapshot.Session, error) {
		// Sessions draw connections from the shared pool as they work, so
		// opening one is free and isolated modes stay within MaxConns.
		return &snapshot.Session{
			Source:  source.NewTable(pool, rel, log),
			Builder: builder,
			Bulker:  j.Target,
		}, nil
	}

	name := checkpoint.Name(j.Def.Name, j.Def.Index)
	syncer, err := snapshot.New(snapshot.Options{
		Database:  j.Def.Name,
		Index:     j.Def.Index,
		Mode:      j.Mode,
		BlockSize: j.BlockSize,
		Nprocs:    nprocs,
		Store:     j.Store,
		Sessions:  sessions,
		Replayer:  source.NewReplication(pool, j.Store, name, log),
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return syncer.Run(ctx)
}
