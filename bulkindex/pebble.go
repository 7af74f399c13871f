// Package bulkindex holds the index writers a snapshot run can target:
// an Elasticsearch bulk client and an embedded pebble store. Both apply
// batches keyed by document id, so redelivering a batch is harmless.
package bulkindex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/Hobby-Box/api-search-sync/doctree"
)

// Pebble writes documents into an embedded pebble store, one key per
// document, bodies lz4-compressed. A ristretto cache remembers body
// hashes so a batch that redelivers unchanged documents skips the
// writes; the cache is advisory, a miss only costs a rewrite.
type Pebble struct {
	db    *pebble.DB
	cache *ristretto.Cache[string, uint64]

	written atomic.Uint64
	skipped atomic.Uint64
}

func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open index store %s: %w", dir, err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, uint64]{
		NumCounters: 1 << 23,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open index store %s: %w", dir, err)
	}
	return &Pebble{db: db, cache: cache}, nil
}

// Keys are 'd', the index name, a zero byte, then the document id. The
// zero byte keeps "users" and "users2" from sharing a prefix range.
func docKey(index, id string) []byte {
	k := make([]byte, 0, 2+len(index)+len(id))
	k = append(k, 'd')
	k = append(k, index...)
	k = append(k, 0)
	k = append(k, id...)
	return k
}

func (p *Pebble) Bulk(ctx context.Context, index string, docs []doctree.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := p.db.NewBatch()
	defer batch.Close()

	type seen struct {
		key string
		sum uint64
	}
	fresh := make([]seen, 0, len(docs))
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ck := index + "\x00" + d.ID
		sum := xxhash.Sum64(d.Body)
		if prev, ok := p.cache.Get(ck); ok && prev == sum {
			p.skipped.Add(1)
			continue
		}
		body, err := compressBody(d.Body)
		if err != nil {
			return fmt.Errorf("bulk %s: compress %s: %w", index, d.ID, err)
		}
		if err := batch.Set(docKey(index, d.ID), body, nil); err != nil {
			return fmt.Errorf("bulk %s: %w", index, err)
		}
		fresh = append(fresh, seen{key: ck, sum: sum})
	}
	if batch.Count() == 0 {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("bulk %s: %w", index, err)
	}
	// Only remember hashes the store actually holds.
	for _, s := range fresh {
		p.cache.Set(s.key, s.sum, 1)
	}
	p.written.Add(uint64(len(fresh)))
	return nil
}

// Get reads one document body back, decompressed. The second return is
// false when the document is not in the store.
func (p *Pebble) Get(index, id string) ([]byte, bool, error) {
	val, closer, err := p.db.Get(docKey(index, id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	defer closer.Close()
	body, err := decompressBody(val)
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	return body, true, nil
}

// Count walks the index prefix and counts documents. Meant for the
// console and tests, not hot paths.
func (p *Pebble) Count(index string) (int, error) {
	lo := docKey(index, "")
	hi := docKey(index, "")
	hi[len(hi)-1] = 1
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer it.Close()
	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		n++
	}
	if err := it.Error(); err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return n, nil
}

// Written reports documents committed by this process; Skipped reports
// documents dropped because their body hash matched the cache.
func (p *Pebble) Written() uint64 { return p.written.Load() }
func (p *Pebble) Skipped() uint64 { return p.skipped.Load() }

// DiskUsage returns the store's total footprint in bytes.
func (p *Pebble) DiskUsage() uint64 { return p.db.Metrics().DiskSpaceUsage() }

func (p *Pebble) Close() error {
	p.cache.Close()
	return p.db.Close()
}

func compressBody(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	lw := lz4.NewWriter(&buf)
	if err := lw.Apply(lz4.BlockSizeOption(lz4.Block64Kb)); err != nil {
		return nil, err
	}
	if _, err := lw.Write(raw); err != nil {
		return nil, err
	}
	if err := lw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBody(comp []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(comp)))
}
