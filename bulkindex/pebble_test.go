package bulkindex

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hobby-Box/api-search-sync/doctree"
)

func doc(id, body string) doctree.Document {
	return doctree.Document{ID: id, Body: []byte(body)}
}

func TestPebbleBulkRoundTrip(t *testing.T) {
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	docs := []doctree.Document{
		doc("1", `{"id":1,"name":"ada"}`),
		doc("2", `{"id":2,"name":"grace"}`),
		doc("3", `{"id":3,"name":"edsger"}`),
	}
	require.NoError(t, p.Bulk(context.Background(), "users", docs))

	for _, d := range docs {
		body, ok, err := p.Get("users", d.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d.Body, body)
	}
	n, err := p.Count("users")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(3), p.Written())
	assert.Equal(t, uint64(0), p.Skipped())
}

func TestPebbleRewriteReplacesBody(t *testing.T) {
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Bulk(ctx, "users", []doctree.Document{doc("1", `{"v":1}`)}))
	require.NoError(t, p.Bulk(ctx, "users", []doctree.Document{doc("1", `{"v":2}`)}))

	body, ok, err := p.Get("users", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(body))

	n, err := p.Count("users")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPebbleSkipsUnchangedBodies(t *testing.T) {
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	batch := []doctree.Document{doc("1", `{"v":1}`), doc("2", `{"v":2}`)}
	require.NoError(t, p.Bulk(ctx, "users", batch))
	p.cache.Wait()
	require.NoError(t, p.Bulk(ctx, "users", batch))

	assert.Equal(t, uint64(2), p.Written())
	assert.Equal(t, uint64(2), p.Skipped())
	n, err := p.Count("users")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPebbleIndexesDoNotBleed(t *testing.T) {
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Bulk(ctx, "users", []doctree.Document{doc("1", `{"a":1}`)}))
	require.NoError(t, p.Bulk(ctx, "users2", []doctree.Document{doc("1", `{"b":1}`), doc("2", `{"b":2}`)}))

	n, err := p.Count("users")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = p.Count("users2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := p.Get("users", "2")
	require.NoError(t, err)
	assert.False(t, ok)

	body, ok, err := p.Get("users", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(body))
}

func TestPebbleGetMissing(t *testing.T) {
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Bulk(context.Background(), "users", nil))

	_, ok, err := p.Get("users", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := p.Count("users")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCompressBodyMultiBlock(t *testing.T) {
	raw := bytes.Repeat([]byte(`{"pad":"xxxxxxxxxxxxxxxx"}`), 8192)
	comp, err := compressBody(raw)
	require.NoError(t, err)
	require.Less(t, len(comp), len(raw))
	back, err := decompressBody(comp)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}
