package booking

import (
	"context"
	"fmt"
	"time"
)

// FindConflicts returns the ids of the member's CONFIRMED and RESERVED
// bookings whose course interval overlaps [start, end). Two intervals
// overlap when s < end and e > start; back-to-back sessions do not
// conflict. Pure read, no locks.
func (service *Service) FindConflicts(ctx context.Context, memberID string, start time.Time, end time.Time) ([]string, error) {
	if memberID == "" {
		return nil, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end not after start", ErrValidation)
	}
	overlapping, err := service.store.ListActiveOverlapping(ctx, memberID, start, end)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(overlapping))
	for _, conflicting := range overlapping {
		ids = append(ids, conflicting.BookingID)
	}
	return ids, nil
}
