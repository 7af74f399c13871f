package snapshot

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Hobby-Box/api-search-sync/tid"
)

var (
	ErrBlockSize = errors.New("block size must be positive")
	ErrScanOrder = errors.New("locator scan went backwards")
)

// Partition streams work units off a locator scan. Locators accumulate
// into units of exactly size rows, except the final unit which takes the
// remainder, so n locators become ceil(n/size) units. Units are yielded
// as soon as they fill, the scan is never buffered whole.
//
// The scan must be ascending; a locator at or below its predecessor (or
// the resume position) stops the stream with ErrScanOrder, since a
// misordered scan would corrupt the checkpoint.
func Partition(ctx context.Context, src Source, after tid.TID, size int) iter.Seq2[*Unit, error] {
	return func(yield func(*Unit, error) bool) {
		if size < 1 {
			yield(nil, ErrBlockSize)
			return
		}

		var seq uint64
		last := after
		cur := make([]tid.TID, 0, size)

		for t, err := range src.ScanTIDs(ctx, after) {
			if err != nil {
				yield(nil, fmt.Errorf("scan: %w", err))
				return
			}
			if t <= last {
				yield(nil, fmt.Errorf("%w: %s after %s", ErrScanOrder, t, last))
				return
			}
			last = t

			cur = append(cur, t)
			if len(cur) == size {
				seq++
				if !yield(&Unit{Seq: seq, TIDs: cur}, nil) {
					return
				}
				cur = make([]tid.TID, 0, size)
			}
		}

		if len(cur) > 0 {
			seq++
			yield(&Unit{Seq: seq, TIDs: cur}, nil)
		}
	}
}
