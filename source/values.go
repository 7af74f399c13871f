package source

import (
	"math/big"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Normalize maps driver-level values onto types the document renderer
// knows how to print: numerics become exact decimals, uuid bytes become
// uuid values, network types become strings. Everything else passes
// through, including nil for SQL NULL.
func Normalize(v any) any {
	switch k := v.(type) {
	case pgtype.Numeric:
		return normalizeNumeric(k)
	case [16]byte:
		return uuid.UUID(k)
	case netip.Prefix:
		return k.String()
	case netip.Addr:
		return k.String()
	default:
		return v
	}
}

func normalizeNumeric(n pgtype.Numeric) any {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		// JSON has no spelling for these.
		return nil
	}
	if n.Int == nil {
		return decimal.New(0, 0)
	}
	return decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp)
}
