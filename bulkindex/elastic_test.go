package bulkindex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hobby-Box/api-search-sync/doctree"
)

// The v8 client refuses servers that do not identify as Elasticsearch,
// so every stub has to send the product header.
func newElasticStub(t *testing.T, handler http.HandlerFunc) *Elastic {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	e, err := NewElastic([]string{srv.URL})
	require.NoError(t, err)
	return e
}

func TestElasticBulkSendsNDJSON(t *testing.T) {
	var (
		path string
		body []byte
	)
	e := newElasticStub(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"took":3,"errors":false,"items":[` +
			`{"index":{"_id":"1","status":201}},` +
			`{"index":{"_id":"2","status":201}}]}`))
	})

	docs := []doctree.Document{
		{ID: "1", Body: []byte(`{"name":"ada"}`)},
		{ID: "2", Body: []byte(`{"name":"grace"}`)},
	}
	require.NoError(t, e.Bulk(context.Background(), "users", docs))

	assert.Equal(t, "/users/_bulk", path)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"1"}}`, lines[0])
	assert.JSONEq(t, `{"name":"ada"}`, lines[1])
	assert.JSONEq(t, `{"index":{"_id":"2"}}`, lines[2])
	assert.JSONEq(t, `{"name":"grace"}`, lines[3])
}

func TestElasticBulkReportsItemFailures(t *testing.T) {
	e := newElasticStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"took":3,"errors":true,"items":[` +
			`{"index":{"_id":"1","status":201}},` +
			`{"index":{"_id":"2","status":400,"error":` +
			`{"type":"mapper_parsing_exception","reason":"field [age] not a number"}}}]}`))
	})

	docs := []doctree.Document{
		{ID: "1", Body: []byte(`{"age":30}`)},
		{ID: "2", Body: []byte(`{"age":"old"}`)},
	}
	err := e.Bulk(context.Background(), "users", docs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 rejected")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
	assert.Contains(t, err.Error(), "first 2:")
}

func TestElasticBulkServerError(t *testing.T) {
	e := newElasticStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"split brain"}`))
	})

	err := e.Bulk(context.Background(), "users", []doctree.Document{{ID: "1", Body: []byte(`{}`)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestElasticBulkEmptyBatchSendsNothing(t *testing.T) {
	calls := 0
	e := newElasticStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	require.NoError(t, e.Bulk(context.Background(), "users", nil))
	assert.Equal(t, 0, calls)
}

func TestElasticPing(t *testing.T) {
	e := newElasticStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"node-1","cluster_name":"test",` +
			`"version":{"number":"8.14.0"},"tagline":"You Know, for Search"}`))
	})
	require.NoError(t, e.Ping(context.Background()))
}
