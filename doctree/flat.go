package doctree

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const keyDelimiter = "|"

// Flat renders each row into a one-level document whose fields are the
// row's columns. The document id is the primary key values joined with
// "|", or a content hash when the table has no primary key.
type Flat struct {
	keys []string
}

func NewFlat(primaryKeys []string) *Flat {
	return &Flat{keys: primaryKeys}
}

func (f *Flat) Build(ctx context.Context, rows []Row) ([]Document, error) {
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		body, err := json.Marshal(row.Values)
		if err != nil {
			return nil, fmt.Errorf("render row %s: %w", row.TID, err)
		}

		id, err := f.docID(row, body)
		if err != nil {
			return nil, err
		}

		docs = append(docs, Document{ID: id, Body: body})
	}
	return docs, nil
}

func (f *Flat) docID(row Row, body []byte) (string, error) {
	if len(f.keys) == 0 {
		// Keyless table. json.Marshal sorts map keys, so the hash is
		// stable across fetches of the same row content.
		return strconv.FormatUint(xxhash.Sum64(body), 16), nil
	}

	id := make([]byte, 0, 32)
	for i, key := range f.keys {
		v, ok := row.Values[key]
		if !ok {
			return "", fmt.Errorf("row %s has no primary key column %q", row.TID, key)
		}
		if i > 0 {
			id = append(id, keyDelimiter...)
		}
		id = append(id, renderKey(v)...)
	}
	return string(id), nil
}

func renderKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case int64:
		return strconv.FormatInt(k, 10)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case int16:
		return strconv.FormatInt(int64(k), 10)
	case int:
		return strconv.Itoa(k)
	case uint64:
		return strconv.FormatUint(k, 10)
	case bool:
		return strconv.FormatBool(k)
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case decimal.Decimal:
		return k.String()
	case uuid.UUID:
		return k.String()
	case [16]byte:
		return uuid.UUID(k).String()
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano)
	case []byte:
		return strconv.FormatUint(xxhash.Sum64(k), 16)
	case nil:
		return ""
	default:
		return fmt.Sprint(k)
	}
}
