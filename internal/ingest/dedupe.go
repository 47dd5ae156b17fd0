package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// duplicateChecker answers whether a reading already exists for a plant at an
// observation time.
type duplicateChecker struct {
	store ReadingStore
}

func (d duplicateChecker) exists(ctx context.Context, plantID int64, observedAt time.Time) (bool, error) {
	r, err := d.store.Find(ctx, plantID, domain.CanonicalTime(observedAt))
	if err != nil {
		return false, fmt.Errorf("%w: find reading: %w", domain.ErrPersistence, err)
	}
	return r != nil, nil
}
