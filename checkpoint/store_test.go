package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hobby-Box/api-search-sync/tid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "mydbmyindex", Name("MyDB", "My-Index"))
	assert.Equal(t, "app_dbusers_v2", Name("app_db", "users.v2"))
	assert.Equal(t, "", Name("---", "..."))
}

func TestSaveReadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	pos := tid.Make(123456, 42)
	require.NoError(t, s.Save("pairdb", pos))

	got, ok, err := s.Read("pairdb")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pos, got)

	// A later save replaces the earlier position.
	require.NoError(t, s.Save("pairdb", tid.Make(123457, 1)))
	got, ok, err = s.Read("pairdb")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tid.Make(123457, 1), got)
}

func TestReadAbsent(t *testing.T) {
	s := NewStore(t.TempDir())

	got, ok, err := s.Read("nothere")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, tid.Zero, got)
}

func TestReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(s.Path("pairdb"), []byte("not,a,tid\n"), 0644))

	_, _, err := s.Read("pairdb")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestClear(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.Save("pairdb", tid.Make(5, 10)))
	require.NoError(t, s.Clear("pairdb"))

	_, ok, err := s.Read("pairdb")
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing again is fine.
	require.NoError(t, s.Clear("pairdb"))
}

func TestFileShape(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.Save("pairdb", tid.Make(5, 10)))

	body, err := os.ReadFile(filepath.Join(dir, ".pairdb.ctid"))
	require.NoError(t, err)
	assert.Equal(t, "5,10\n", string(body))

	// No stray temp file left behind.
	_, err = os.Stat(filepath.Join(dir, ".pairdb.ctid.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestTxID(t *testing.T) {
	s := NewStore(t.TempDir())

	_, ok, err := s.ReadTxID("pairdb")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveTxID("pairdb", 987654321))
	got, ok, err := s.ReadTxID("pairdb")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(987654321), got)

	require.NoError(t, os.WriteFile(s.TxPath("pairdb"), []byte("xyz\n"), 0644))
	_, _, err = s.ReadTxID("pairdb")
	assert.ErrorIs(t, err, ErrCorrupt)
}
