package snapshot

import (
	"strconv"

	"github.com/Hobby-Box/api-search-sync/tid"
)

// Unit is one work batch: up to BlockSize row locators in ascending
// physical order. Seq numbers units in emission order starting at 1; the
// commit tracker uses it to advance the checkpoint over the finished
// prefix.
type Unit struct {
	Seq  uint64
	TIDs []tid.TID
}

func (u *Unit) Count() int {
	return len(u.TIDs)
}

// Max is the greatest locator in the unit, the checkpoint candidate once
// every unit before this one has finished.
func (u *Unit) Max() tid.TID {
	return u.TIDs[len(u.TIDs)-1]
}

func (u *Unit) String() string {
	if len(u.TIDs) == 0 {
		return "unit " + strconv.FormatUint(u.Seq, 10) + " (empty)"
	}
	return "unit " + strconv.FormatUint(u.Seq, 10) +
		" (" + strconv.Itoa(len(u.TIDs)) + " rows through " + u.Max().String() + ")"
}
