package snapshot

import (
	"errors"
	"testing"

	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(seq uint64, max tid.TID) *Unit {
	return &Unit{Seq: seq, TIDs: []tid.TID{max}}
}

func TestCommitTrackerInOrder(t *testing.T) {
	var saved []tid.TID
	c := newCommitTracker(tid.Zero, func(pos tid.TID) error {
		saved = append(saved, pos)
		return nil
	})

	require.NoError(t, c.complete(unit(1, tid.Make(1, 5))))
	require.NoError(t, c.complete(unit(2, tid.Make(2, 5))))
	require.NoError(t, c.complete(unit(3, tid.Make(3, 5))))

	assert.Equal(t, []tid.TID{tid.Make(1, 5), tid.Make(2, 5), tid.Make(3, 5)}, saved)
	assert.Equal(t, tid.Make(3, 5), c.position())
	assert.Equal(t, uint64(3), c.committed())
}

func TestCommitTrackerOutOfOrder(t *testing.T) {
	var saved []tid.TID
	c := newCommitTracker(tid.Zero, func(pos tid.TID) error {
		saved = append(saved, pos)
		return nil
	})

	// Unit 2 lands first: nothing to commit yet.
	require.NoError(t, c.complete(unit(2, tid.Make(2, 5))))
	assert.Empty(t, saved)
	assert.Equal(t, tid.Zero, c.position())

	// Unit 1 closes the gap: the checkpoint jumps over both at once.
	require.NoError(t, c.complete(unit(1, tid.Make(1, 5))))
	assert.Equal(t, []tid.TID{tid.Make(2, 5)}, saved)
	assert.Equal(t, tid.Make(2, 5), c.position())
}

func TestCommitTrackerGapHoldsCheckpoint(t *testing.T) {
	var saved []tid.TID
	c := newCommitTracker(tid.Zero, func(pos tid.TID) error {
		saved = append(saved, pos)
		return nil
	})

	// Unit 3 never completes; 4 finishes but must stay uncommitted.
	require.NoError(t, c.complete(unit(1, tid.Make(1, 5))))
	require.NoError(t, c.complete(unit(2, tid.Make(2, 5))))
	require.NoError(t, c.complete(unit(4, tid.Make(4, 5))))

	assert.Equal(t, []tid.TID{tid.Make(1, 5), tid.Make(2, 5)}, saved)
	assert.Equal(t, tid.Make(2, 5), c.position())
	assert.Equal(t, uint64(2), c.committed())
}

func TestCommitTrackerMonotonic(t *testing.T) {
	var saved []tid.TID
	c := newCommitTracker(tid.Zero, func(pos tid.TID) error {
		saved = append(saved, pos)
		return nil
	})

	for _, seq := range []uint64{5, 3, 1, 4, 2} {
		require.NoError(t, c.complete(unit(seq, tid.Make(uint32(seq), 1))))
	}

	last := tid.Zero
	for _, pos := range saved {
		assert.True(t, last.Less(pos), "checkpoint regressed: %s then %s", last, pos)
		last = pos
	}
	assert.Equal(t, tid.Make(5, 1), c.position())
}

func TestCommitTrackerStartsFromResume(t *testing.T) {
	c := newCommitTracker(tid.Make(7, 7), func(tid.TID) error { return nil })
	assert.Equal(t, tid.Make(7, 7), c.position())
	assert.Equal(t, uint64(0), c.committed())
}

func TestCommitTrackerSaveFailure(t *testing.T) {
	boom := errors.New("disk full")
	c := newCommitTracker(tid.Zero, func(tid.TID) error { return boom })

	err := c.complete(unit(1, tid.Make(1, 1)))
	assert.ErrorIs(t, err, boom)
}
