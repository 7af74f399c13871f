package snapshot

import (
	"context"
	"fmt"
	"iter"

	"github.com/Hobby-Box/api-search-sync/utils"
	"golang.org/x/sync/errgroup"
)

// Mode selects how units are dispatched to workers and how sessions are
// scoped. The names come from the strategy the mode reproduces:
//
//	synchronous          one goroutine, one session, abort on first failure
//	multithreaded        pooled dispatch, one session shared by all workers
//	multiprocess         pooled dispatch, a fresh session per unit
//	multithreaded_async  streamed dispatch over a fixed worker set, shared session
//	multiprocess_async   streamed dispatch, a session per worker, graceful drain
type Mode string

const (
	Synchronous        Mode = "synchronous"
	Multithreaded      Mode = "multithreaded"
	Multiprocess       Mode = "multiprocess"
	MultithreadedAsync Mode = "multithreaded_async"
	MultiprocessAsync  Mode = "multiprocess_async"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	switch m {
	case Synchronous, Multithreaded, Multiprocess, MultithreadedAsync, MultiprocessAsync:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadMode, s)
}

// sharedSession reports whether the whole run works through a single
// session. The process-style modes isolate sessions instead.
func (m Mode) sharedSession() bool {
	return m == Synchronous || m == Multithreaded || m == MultithreadedAsync
}

func (m Mode) runner(nprocs int, log utils.Logger) runner {
	switch m {
	case Synchronous:
		return seqRunner{}
	case Multithreaded, Multiprocess:
		return poolRunner{nprocs: nprocs, log: log}
	case MultithreadedAsync:
		return streamRunner{nprocs: nprocs, log: log}
	default:
		return streamRunner{nprocs: nprocs, log: log, drain: true}
	}
}

// workerInit hands a runner the means to set up one worker: it returns
// the unit function plus a release hook. Runners call it at their session
// grain (once, per unit, or per worker goroutine). Init failures are
// fatal to the run; per-unit failures are the unit function's business.
type workerInit func(ctx context.Context) (do func(ctx context.Context, u *Unit) error, release func(), err error)

type runner interface {
	run(ctx context.Context, units iter.Seq2[*Unit, error], worker workerInit) error
}

// seqRunner processes everything inline and stops at the first problem,
// whether it came from the scan or from a unit.
type seqRunner struct{}

func (seqRunner) run(ctx context.Context, units iter.Seq2[*Unit, error], worker workerInit) error {
	do, release, err := worker(ctx)
	if err != nil {
		return err
	}
	defer release()

	for u, err := range units {
		if err != nil {
			return err
		}
		if err := do(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// poolRunner dispatches one goroutine per unit, at most nprocs in flight.
// A failed unit is logged right away and the rest of the pool keeps
// going. Scan errors and worker setup errors tear the pool down.
type poolRunner struct {
	nprocs int
	log    utils.Logger
}

func (r poolRunner) run(ctx context.Context, units iter.Seq2[*Unit, error], worker workerInit) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.nprocs)

	var scanErr error
	for u, err := range units {
		if err != nil {
			scanErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			do, release, err := worker(gctx)
			if err != nil {
				return err
			}
			defer release()

			if err := do(gctx, u); err != nil {
				r.log.ErrorCtx(gctx, "snapshot: unit failed", "unit", u.Seq, "rows", u.Count(), "err", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if scanErr != nil {
		return scanErr
	}
	if err != nil {
		return err
	}
	return context.Cause(ctx)
}

// streamRunner starts a fixed set of workers pulling units off a channel.
// Unit failures are collected silently here and surface in the run
// report once everything drains. With drain set, cancelling ctx stops
// the feed but in-flight units run to completion on a detached context.
type streamRunner struct {
	nprocs int
	log    utils.Logger
	drain  bool
}

func (r streamRunner) run(ctx context.Context, units iter.Seq2[*Unit, error], worker workerInit) error {
	workCtx := ctx
	if r.drain {
		workCtx = context.WithoutCancel(ctx)
	}

	feed := make(chan *Unit)
	g, gctx := errgroup.WithContext(workCtx)

	for i := 0; i < r.nprocs; i++ {
		g.Go(func() error {
			do, release, err := worker(gctx)
			if err != nil {
				return err
			}
			defer release()

			for u := range feed {
				if err := do(gctx, u); err != nil {
					r.log.DebugCtx(gctx, "snapshot: unit failed", "unit", u.Seq, "err", err)
				}
			}
			return nil
		})
	}

	var scanErr error
feeding:
	for u, err := range units {
		if err != nil {
			scanErr = err
			break
		}
		select {
		case feed <- u:
		case <-gctx.Done():
			// a worker failed to set up
			break feeding
		case <-ctx.Done():
			if r.drain {
				r.log.WarnCtx(ctx, "snapshot: interrupted, draining in-flight units")
			}
			break feeding
		}
	}
	close(feed)

	err := g.Wait()
	if scanErr != nil {
		return scanErr
	}
	if err != nil {
		return err
	}
	return context.Cause(ctx)
}
