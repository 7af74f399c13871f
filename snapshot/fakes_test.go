package snapshot

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/Hobby-Box/api-search-sync/doctree"
	"github.com/Hobby-Box/api-search-sync/tid"
)

var errFetchBoom = errors.New("fetch boom")

// memSource serves a fixed ascending locator list and per-locator row
// values, the way a real table scan would.
type memSource struct {
	tids []tid.TID
	rows map[tid.TID]map[string]any

	// failOn makes FetchRows fail for any batch containing the locator.
	failOn tid.TID

	fetches atomic.Int64
}

func newMemSource(pages, rowsPerPage int) *memSource {
	src := &memSource{rows: make(map[tid.TID]map[string]any)}
	id := int64(0)
	for p := 0; p < pages; p++ {
		for r := 1; r <= rowsPerPage; r++ {
			id++
			t := tid.Make(uint32(p), uint16(r))
			src.tids = append(src.tids, t)
			src.rows[t] = map[string]any{"id": id, "title": "row"}
		}
	}
	return src
}

func (m *memSource) truncate(n int) *memSource {
	m.tids = m.tids[:n]
	return m
}

func (m *memSource) ScanTIDs(ctx context.Context, after tid.TID) iter.Seq2[tid.TID, error] {
	return func(yield func(tid.TID, error) bool) {
		for _, t := range m.tids {
			if err := ctx.Err(); err != nil {
				yield(tid.Zero, err)
				return
			}
			if t <= after {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (m *memSource) FetchRows(ctx context.Context, tids []tid.TID) ([]doctree.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.fetches.Add(1)

	rows := make([]doctree.Row, 0, len(tids))
	for _, t := range tids {
		if m.failOn != tid.Zero && t == m.failOn {
			return nil, errFetchBoom
		}
		vals, ok := m.rows[t]
		if !ok {
			continue // row vanished between scan and fetch
		}
		rows = append(rows, doctree.Row{TID: t, Values: vals})
	}
	return rows, nil
}

// memBulker keeps documents keyed by id, which is exactly the upsert
// behavior of a real index.
type memBulker struct {
	mu    sync.Mutex
	docs  map[string][]byte
	calls int
}

func newMemBulker() *memBulker {
	return &memBulker{docs: make(map[string][]byte)}
}

func (b *memBulker) Bulk(ctx context.Context, index string, docs []doctree.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	for _, d := range docs {
		b.docs[index+"/"+d.ID] = d.Body
	}
	return nil
}

func (b *memBulker) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// gateBulker blocks the first bulk call until released, so a test can
// interrupt a run while a unit is in flight.
type gateBulker struct {
	*memBulker
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateBulker() *gateBulker {
	return &gateBulker{
		memBulker: newMemBulker(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (b *gateBulker) Bulk(ctx context.Context, index string, docs []doctree.Document) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.memBulker.Bulk(ctx, index, docs)
}

// memReplayer records catch-up invocations.
type memReplayer struct {
	txmin int64
	txmax int64

	mu      sync.Mutex
	replays []Bounds
}

func (r *memReplayer) Checkpoint(ctx context.Context) (int64, error) {
	return r.txmin, nil
}

func (r *memReplayer) SnapshotTxID(ctx context.Context) (int64, error) {
	return r.txmax, nil
}

func (r *memReplayer) Replay(ctx context.Context, txmin, txmax int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays = append(r.replays, Bounds{Txmin: txmin, Txmax: txmax})
	return nil
}

func (r *memReplayer) replayed() []Bounds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Bounds(nil), r.replays...)
}
