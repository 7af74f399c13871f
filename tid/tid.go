package tid

import (
	"strconv"
)

/*
	TID is a 64-bit physical row locator: the heap page number and the row
	offset within that page, packed so that plain integer comparison equals
	(page, row) lexicographic order. Page 0 row 0 is a real location in the
	table, so the zero value is reserved for "no position" and live rows
	start at row 1 (heap offsets are 1-based).

0...............16..............32..............48.............64
+-------+-------+-------+-------+-------+-------+-------+-------
|.....zero......|.............page.(32.bits)....|...row.(16)....|
*/
type TID uint64

const rowBits = 16
const rowMask = uint64(1<<rowBits) - 1

// Zero is "no position": scans starting from Zero cover the whole table.
const Zero TID = 0

// Bad marks an unparseable locator. Valid locators keep the top 16 bits
// clear, so Bad can never collide with a real one.
const Bad TID = TID(^uint64(0))

func Make(page uint32, row uint16) TID {
	return TID(uint64(page)<<rowBits | uint64(row))
}

func (t TID) Page() uint32 {
	return uint32(uint64(t) >> rowBits)
}

func (t TID) Row() uint16 {
	return uint16(uint64(t) & rowMask)
}

func (t TID) Less(other TID) bool {
	return t < other
}

func (t TID) IsZero() bool {
	return t == Zero
}

// String renders the Postgres tid literal form, e.g. "(5,10)".
func (t TID) String() string {
	var buf [32]byte
	b := buf[:0]

	b = append(b, '(')
	b = strconv.AppendUint(b, uint64(t.Page()), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(t.Row()), 10)
	b = append(b, ')')

	return string(b)
}

// Parse reads "(page,row)" or "page,row". It returns Bad on anything else,
// including trailing garbage or out-of-range components.
func Parse(s string) TID {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = s[1 : len(s)-1]
	}

	comma := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			comma = i
			break
		}
	}
	if comma <= 0 || comma == len(s)-1 {
		return Bad
	}

	page, err := strconv.ParseUint(s[:comma], 10, 32)
	if err != nil {
		return Bad
	}
	row, err := strconv.ParseUint(s[comma+1:], 10, 16)
	if err != nil {
		return Bad
	}

	return Make(uint32(page), uint16(row))
}
