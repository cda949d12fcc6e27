// Package source defines the observation source boundary: an untrusted,
// unstable upstream that either yields one occupancy observation per facility
// or fails in a classifiable way.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/mustafarshd/corec-tracker/internal/model"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindTransient covers network errors, timeouts and upstream outages.
	// The next scheduled pass retries naturally.
	KindTransient Kind = "transient"
	// KindPermanent covers structural problems: the page no longer carries
	// the expected widget, or the facility is missing from it. The facility
	// is still attempted on future passes since the distinction is not
	// reliable at this boundary.
	KindPermanent Kind = "permanent"
)

// Error is a typed fetch failure for one facility.
type Error struct {
	Kind       Kind
	FacilityID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s source error for facility %q: %v", e.Kind, e.FacilityID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a transient fetch failure.
func Transient(facilityID string, err error) *Error {
	return &Error{Kind: KindTransient, FacilityID: facilityID, Err: err}
}

// Permanent wraps err as a permanent fetch failure.
func Permanent(facilityID string, err error) *Error {
	return &Error{Kind: KindPermanent, FacilityID: facilityID, Err: err}
}

// IsTransient reports whether err is a transient source failure.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindTransient
}

// Source produces one observation for a facility, or a typed failure.
// Implementations must respect ctx cancellation and deadlines.
type Source interface {
	Fetch(ctx context.Context, facilityID string) (model.Observation, error)
}
