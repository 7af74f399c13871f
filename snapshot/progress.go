package snapshot

import (
	"sync"

	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/Hobby-Box/api-search-sync/utils"
)

// commitTracker decides when the durable checkpoint may move. Units
// finish in any order under concurrent dispatch, but the checkpoint only
// ever advances over the contiguous prefix of finished units. A unit that
// failed leaves a hole, so everything past it stays uncommitted and the
// next run re-covers it.
type commitTracker struct {
	mu    sync.Mutex
	next  uint64 // lowest seq not yet committed
	ready utils.Heap[uint64]
	maxes map[uint64]tid.TID
	pos   tid.TID
	save  func(pos tid.TID) error
}

func newCommitTracker(start tid.TID, save func(pos tid.TID) error) *commitTracker {
	return &commitTracker{
		next:  1,
		maxes: make(map[uint64]tid.TID),
		pos:   start,
		save:  save,
	}
}

// complete marks one unit finished. When that extends the contiguous
// prefix, the checkpoint jumps to the greatest covered locator and is
// persisted before complete returns. The save runs under the tracker
// lock, so positions reach the store strictly in order.
func (c *commitTracker) complete(u *Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxes[u.Seq] = u.Max()
	c.ready.Push(u.Seq)

	advanced := false
	for c.ready.Len() > 0 && c.ready.Peek() == c.next {
		seq := c.ready.Pop()
		c.pos = c.maxes[seq]
		delete(c.maxes, seq)
		c.next++
		advanced = true
	}

	if !advanced {
		return nil
	}
	return c.save(c.pos)
}

// position is the latest committed locator, the resume point a restart
// would start from.
func (c *commitTracker) position() tid.TID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// committed is the count of units folded into the checkpoint so far.
func (c *commitTracker) committed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next - 1
}
