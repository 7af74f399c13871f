package bulkindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/Hobby-Box/api-search-sync/doctree"
)

// Elastic ships documents through the _bulk endpoint using index
// actions, which create or replace by id.
type Elastic struct {
	es *elasticsearch.Client
}

func NewElastic(addrs []string) (*Elastic, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addrs})
	if err != nil {
		return nil, fmt.Errorf("elastic client: %w", err)
	}
	return &Elastic{es: es}, nil
}

// Ping checks that the cluster answers before a run starts.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.es.Info(e.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic ping: %s", res.Status())
	}
	return nil
}

func (e *Elastic) Bulk(ctx context.Context, index string, docs []doctree.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var body bytes.Buffer
	for _, d := range docs {
		id, err := json.Marshal(d.ID)
		if err != nil {
			return fmt.Errorf("bulk %s: %w", index, err)
		}
		body.WriteString(`{"index":{"_id":`)
		body.Write(id)
		body.WriteString("}}\n")
		body.Write(d.Body)
		body.WriteByte('\n')
	}
	res, err := e.es.Bulk(bytes.NewReader(body.Bytes()),
		e.es.Bulk.WithIndex(index),
		e.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk %s: %s", index, res.Status())
	}
	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("bulk %s: decode response: %w", index, err)
	}
	if !out.Errors {
		return nil
	}
	failed, first := out.firstFailure()
	return fmt.Errorf("bulk %s: %d of %d rejected, first %s", index, failed, len(docs), first)
}

// The bulk endpoint answers 200 even when items fail, flagging them with
// errors:true and a per-item status.
type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (r *bulkResponse) firstFailure() (int, string) {
	n, first := 0, ""
	for _, item := range r.Items {
		for _, st := range item {
			if st.Status < 300 {
				continue
			}
			n++
			if first == "" {
				first = fmt.Sprintf("%s: %s: %s", st.ID, st.Error.Type, st.Error.Reason)
			}
		}
	}
	return n, first
}
