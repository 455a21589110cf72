package export

import (
	"context"

	"finly/internal/core"
)

// Ports for outbound ledger adapters.
type (
	// LedgerWriter appends a purchase row to an external ledger and returns
	// a reference to the written row.
	LedgerWriter interface {
		Append(ctx context.Context, p core.Purchase) (rowRef string, err error)
	}

	// LedgerReader lists purchases previously exported for a given month.
	LedgerReader interface {
		ListMonth(ctx context.Context, year int, month int) ([]core.Purchase, error)
	}
)
