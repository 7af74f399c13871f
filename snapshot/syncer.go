// Package snapshot copies a table's rows into a search index in parallel
// resumable batches. A run scans physical row locators, folds them into
// work units, dispatches the units through one of five strategies, and
// finishes with a change-capture catch-up over the transaction window the
// run was bracketed by. A durable checkpoint advances over the finished
// prefix of units, so an interrupted run resumes where it left off.
package snapshot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/Hobby-Box/api-search-sync/utils"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrBadMode    = errors.New("unknown dispatch mode")
	ErrNoStore    = errors.New("checkpoint store is required")
	ErrNoSessions = errors.New("session factory is required")
	ErrNoReplayer = errors.New("replayer is required")
	ErrNoName     = errors.New("database and index names are required")
)

const DefaultBlockSize = 10000

type Options struct {
	// Database and Index identify the sync pair; together they name the
	// checkpoint files.
	Database string
	Index    string

	Mode Mode // default MultiprocessAsync

	// BlockSize caps rows per work unit. Default DefaultBlockSize.
	BlockSize int

	// Nprocs bounds worker concurrency. Default twice the CPU count.
	Nprocs int

	Store    *checkpoint.Store
	Sessions SessionFactory
	Replayer Replayer

	Logger utils.Logger
}

type Syncer struct {
	opts Options
	name string // checkpoint file stem
	log  utils.Logger
}

func New(opts Options) (*Syncer, error) {
	if opts.Database == "" || opts.Index == "" {
		return nil, ErrNoName
	}
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Sessions == nil {
		return nil, ErrNoSessions
	}
	if opts.Replayer == nil {
		return nil, ErrNoReplayer
	}

	if opts.Mode == "" {
		opts.Mode = MultiprocessAsync
	} else if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Nprocs <= 0 {
		opts.Nprocs = 2 * runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}

	return &Syncer{
		opts: opts,
		name: checkpoint.Name(opts.Database, opts.Index),
		log:  opts.Logger,
	}, nil
}

// UnitError is one failed work unit, kept in the run report.
type UnitError struct {
	Seq  uint64
	Rows int
	Err  error
}

// Report is what a run leaves behind, whether it finished or aborted.
type Report struct {
	RunID    string
	Database string
	Index    string
	Mode     Mode

	Resumed    tid.TID // position the run started from, zero on a fresh start
	Checkpoint tid.TID // position committed by the end
	Bounds     Bounds

	Units     uint64 // emitted by the partitioner
	Completed uint64
	Docs      uint64
	Failed    []UnitError

	CaughtUp bool
	Elapsed  time.Duration
	AvgUnit  time.Duration
}

// Run executes one full snapshot pass: resume, scan, dispatch, catch up.
// The returned report is filled in even when err is non-nil. Failed units
// do not fail the run; they are listed in the report and their rows stay
// behind the checkpoint for the next run to re-cover. Aborts (scan
// errors, session setup errors, checkpoint write errors, cancellation)
// do fail the run and skip the catch-up pass.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	runID := uuid.Must(uuid.NewV7()).String()
	ctx = utils.WithDefaultArgs(ctx, "run", runID, "database", s.opts.Database, "index", s.opts.Index)
	start := time.Now()

	rep := &Report{
		RunID:    runID,
		Database: s.opts.Database,
		Index:    s.opts.Index,
		Mode:     s.opts.Mode,
	}

	resume, resumed, err := s.opts.Store.Read(s.name)
	if err != nil {
		return rep, err
	}
	rep.Resumed = resume

	bounds, err := s.captureBounds(ctx)
	if err != nil {
		return rep, err
	}
	rep.Bounds = bounds

	s.log.InfoCtx(ctx, "snapshot: starting",
		"mode", s.opts.Mode, "block_size", s.opts.BlockSize, "nprocs", s.opts.Nprocs,
		"resumed", resumed, "from", resume, "txmin", bounds.Txmin, "txmax", bounds.Txmax)

	// The lead session drives the locator scan. The shared modes reuse it
	// for the workers too; the isolated modes open their own.
	lead, err := s.opts.Sessions(ctx)
	if err != nil {
		return rep, fmt.Errorf("open session: %w", err)
	}
	defer lead.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	tracker := newCommitTracker(resume, func(pos tid.TID) error {
		if err := s.opts.Store.Save(s.name, pos); err != nil {
			return err
		}
		CheckpointPage.WithLabelValues(s.opts.Database, s.opts.Index).Set(float64(pos.Page()))
		CheckpointRow.WithLabelValues(s.opts.Database, s.opts.Index).Set(float64(pos.Row()))
		return nil
	})

	var (
		emitted   atomic.Uint64
		completed atomic.Uint64
		docs      atomic.Uint64
		avg       utils.AvgVal
		failures  = xsync.NewMapOf[uint64, *UnitError]()
	)

	do := func(ses *Session) func(ctx context.Context, u *Unit) error {
		return func(ctx context.Context, u *Unit) error {
			t0 := time.Now()
			n, err := processUnit(ctx, ses, s.opts.Index, u)
			if err != nil {
				UnitsFailed.WithLabelValues(s.opts.Database, s.opts.Index).Inc()
				failures.Store(u.Seq, &UnitError{Seq: u.Seq, Rows: u.Count(), Err: err})
				return err
			}

			elapsed := time.Since(t0)
			avg.Add(elapsed.Seconds())
			completed.Add(1)
			docs.Add(uint64(n))
			UnitsCompleted.WithLabelValues(s.opts.Database, s.opts.Index).Inc()
			DocsIndexed.WithLabelValues(s.opts.Database, s.opts.Index).Add(float64(n))
			UnitDuration.WithLabelValues(s.opts.Database, s.opts.Index).Observe(elapsed.Seconds())
			s.log.DebugCtx(ctx, "snapshot: unit done",
				"unit", u.Seq, "rows", u.Count(), "docs", n, "elapsed", elapsed)

			if err := tracker.complete(u); err != nil {
				// A checkpoint that cannot be written makes further
				// progress unaccountable. Stop the whole run.
				err = fmt.Errorf("checkpoint save: %w", err)
				cancel(err)
				return err
			}
			return nil
		}
	}

	var worker workerInit
	if s.opts.Mode.sharedSession() {
		shared := do(lead)
		worker = func(context.Context) (func(context.Context, *Unit) error, func(), error) {
			return shared, func() {}, nil
		}
	} else {
		worker = func(wctx context.Context) (func(context.Context, *Unit) error, func(), error) {
			ses, err := s.opts.Sessions(wctx)
			if err != nil {
				return nil, nil, fmt.Errorf("open session: %w", err)
			}
			release := func() {
				if err := ses.Close(); err != nil {
					s.log.WarnCtx(wctx, "snapshot: session close", "err", err)
				}
			}
			return do(ses), release, nil
		}
	}

	units := func(yield func(*Unit, error) bool) {
		for u, err := range Partition(runCtx, lead.Source, resume, s.opts.BlockSize) {
			if err == nil {
				emitted.Add(1)
				UnitsEmitted.WithLabelValues(s.opts.Database, s.opts.Index).Inc()
			}
			if !yield(u, err) {
				return
			}
		}
	}

	rerr := s.opts.Mode.runner(s.opts.Nprocs, s.log).run(runCtx, units, worker)

	rep.Units = emitted.Load()
	rep.Completed = completed.Load()
	rep.Docs = docs.Load()
	rep.Checkpoint = tracker.position()
	rep.Elapsed = time.Since(start)
	rep.AvgUnit = time.Duration(avg.Val() * float64(time.Second))
	failures.Range(func(_ uint64, ue *UnitError) bool {
		rep.Failed = append(rep.Failed, *ue)
		return true
	})
	slices.SortFunc(rep.Failed, func(a, b UnitError) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	if rerr != nil {
		s.log.ErrorCtx(ctx, "snapshot: run aborted",
			"units", rep.Units, "completed", rep.Completed, "checkpoint", rep.Checkpoint, "err", rerr)
		return rep, rerr
	}

	for _, ue := range rep.Failed {
		s.log.WarnCtx(ctx, "snapshot: unit failed",
			"unit", ue.Seq, "rows", ue.Rows, "err", ue.Err)
	}

	if err := s.catchUp(ctx, bounds); err != nil {
		return rep, err
	}
	rep.CaughtUp = true

	s.log.InfoCtx(ctx, "snapshot: done",
		"units", rep.Units, "completed", rep.Completed, "failed", len(rep.Failed),
		"docs", rep.Docs, "checkpoint", rep.Checkpoint, "elapsed", rep.Elapsed)
	return rep, nil
}
