// Package config loads sync definitions, one per table-to-index pair.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Hobby-Box/api-search-sync/checkpoint"
)

// Definition binds one source table to one target index.
type Definition struct {
	// Name identifies the source database; together with Index it also
	// names the checkpoint files.
	Name string `json:"name"`
	// DSN is the postgres connection string.
	DSN string `json:"dsn"`
	// Schema defaults to public.
	Schema string `json:"schema"`
	Table  string `json:"table"`
	// Index is the target index; defaults to the table name.
	Index string `json:"index"`
	// PrimaryKey overrides catalog introspection when set. Without it,
	// and with no primary key in the catalog, documents get hashed ids.
	PrimaryKey []string `json:"primary_key"`
}

func (d *Definition) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("missing name")
	case d.DSN == "":
		return fmt.Errorf("missing dsn")
	case d.Table == "":
		return fmt.Errorf("missing table")
	}
	return nil
}

// Load reads a JSON array of definitions, applies defaults and checks
// that no two definitions share checkpoint files.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s: no sync definitions", path)
	}
	stems := make(map[string]int, len(defs))
	for i := range defs {
		d := &defs[i]
		if d.Schema == "" {
			d.Schema = "public"
		}
		if d.Index == "" {
			d.Index = d.Table
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("%s: definition %d: %w", path, i, err)
		}
		stem := checkpoint.Name(d.Name, d.Index)
		if j, dup := stems[stem]; dup {
			return nil, fmt.Errorf("%s: definitions %d and %d share checkpoint %s", path, j, i, stem)
		}
		stems[stem] = i
	}
	return defs, nil
}
