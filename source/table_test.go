package source

import (
	"testing"

	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestScanQuery(t *testing.T) {
	rel := &Relation{Schema: "public", Table: "users"}

	assert.Equal(t,
		`SELECT ctid FROM ONLY "public"."users" ORDER BY ctid`,
		scanQuery(rel, false))
	assert.Equal(t,
		`SELECT ctid FROM ONLY "public"."users" WHERE ctid > $1 ORDER BY ctid`,
		scanQuery(rel, true))
}

func TestFetchQuery(t *testing.T) {
	rel := &Relation{Schema: "app", Table: "book"}
	assert.Equal(t,
		`SELECT ctid, * FROM ONLY "app"."book" WHERE ctid = ANY($1)`,
		fetchQuery(rel))
}

func TestIdentQuoting(t *testing.T) {
	rel := &Relation{Schema: "public", Table: `we"ird`}
	assert.Equal(t, `"public"."we""ird"`, rel.Ident())
	assert.Equal(t, `public.we"ird`, rel.String())
}

func TestPgTIDMapping(t *testing.T) {
	got := pgTID(tid.Make(123456, 7))
	assert.Equal(t, pgtype.TID{BlockNumber: 123456, OffsetNumber: 7, Valid: true}, got)

	ids := pgTIDs([]tid.TID{tid.Make(1, 2), tid.Make(3, 4)})
	assert.Equal(t, []pgtype.TID{
		{BlockNumber: 1, OffsetNumber: 2, Valid: true},
		{BlockNumber: 3, OffsetNumber: 4, Valid: true},
	}, ids)
}
