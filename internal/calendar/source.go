package calendar

import (
	"context"
	"errors"
	"time"

	"rental-thermostat-backend/internal/parse"
)

// ErrUnavailable wraps any network, auth, or malformed-payload failure from an
// upstream calendar. Callers fall back to last-known-good occupancy instead of
// treating the property as vacant.
var ErrUnavailable = errors.New("calendar source unavailable")

// Source is the capability the engine consumes for booking data. One Source
// per configured upstream calendar feed.
type Source interface {
	ID() string
	FetchEvents(ctx context.Context, propertyID int64, since time.Time) ([]parse.RawEvent, error)
}
