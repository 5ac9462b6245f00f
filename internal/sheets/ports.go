package sheets

import (
	"context"

	"summa/internal/core"
)

// Ports for outbound adapters.
type (
	// InvoiceAppender writes a single invoice to an external sheet and
	// returns a reference to the written range.
	InvoiceAppender interface {
		Append(ctx context.Context, inv core.Invoice) (rowRef string, err error)
	}
)
