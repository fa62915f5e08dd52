package pipeline

import (
	"context"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

// MultiLoader writes each batch to several loaders in order, stopping at
// the first failure.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, batch domain.ReportBatch) error {
	for _, l := range m {
		if err := l.LoadBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
