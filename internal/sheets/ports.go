package sheets

import (
	"context"
	"time"
)

// ActivityRow is one exported ledger event in the shape of a spreadsheet row.
type ActivityRow struct {
	Kind        string // "expense" or "settlement"
	ID          string
	SpaceID     string
	Date        time.Time
	Description string
	PayerName   string
	AmountMinor int64
	Currency    string
}

// ActivityWriter is the outbound port the export worker writes through.
type ActivityWriter interface {
	Append(ctx context.Context, row ActivityRow) (rowRef string, err error)
}
