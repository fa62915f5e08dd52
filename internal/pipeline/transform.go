package pipeline

import (
	"context"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

// ReportTransformer implements Transformer by assembling segments against
// a fixed set of observation error tables.
type ReportTransformer struct {
	tables *domain.ErrorTables
}

// NewTransformer creates a ReportTransformer. A nil tables value uses the
// built-in defaults.
func NewTransformer(tables *domain.ErrorTables) *ReportTransformer {
	if tables == nil {
		tables = domain.DefaultErrorTables()
	}
	return &ReportTransformer{tables: tables}
}

func (t *ReportTransformer) Transform(ctx context.Context, seg domain.Segment) (domain.ReportBatch, []error, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReportBatch{}, nil, err
	}
	return domain.AssembleSegment(seg, t.tables)
}
