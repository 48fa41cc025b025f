package freshness

import (
	"time"

	"github.com/jonboulle/clockwork"

	"fleet-mds-provider/pkg/apperrors"
)

// State is the availability classification of one hour bucket.
type State int

const (
	// StateReady means the bucket is materialized and servable.
	StateReady State = iota
	// StatePending means the bucket has closed but no materialization run has
	// completed for it yet.
	StatePending
	// StateFuture means the bucket has not fully elapsed.
	StateFuture
	// StateExpired means the bucket fell out of the retention window or
	// predates the start of operations.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePending:
		return "pending"
	case StateFuture:
		return "future"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Resolver classifies hour buckets against the current time, a retention
// window, and the start of fleet operations. A zero retention means the
// category is kept indefinitely.
type Resolver struct {
	clock           clockwork.Clock
	retention       time.Duration
	operationsStart time.Time
}

func NewResolver(clock clockwork.Clock, retention time.Duration, operationsStart time.Time) *Resolver {
	return &Resolver{
		clock:           clock,
		retention:       retention,
		operationsStart: operationsStart.UTC(),
	}
}

// Classify resolves the state of a bucket given whether a materialization run
// has completed for it. Expiry takes precedence over pendingness: a bucket
// both unmaterialized and out of retention is expired.
func (r *Resolver) Classify(bucket HourBucket, completed bool) State {
	now := r.clock.Now().UTC()
	if bucket.End().After(now) {
		return StateFuture
	}
	if !r.operationsStart.IsZero() && bucket.End().Before(r.operationsStart) {
		return StateExpired
	}
	if r.retention > 0 && bucket.End().Before(now.Add(-r.retention)) {
		return StateExpired
	}
	if !completed {
		return StatePending
	}
	return StateReady
}

// BeforeOperations reports whether a bucket closed before the fleet began
// operating.
func (r *Resolver) BeforeOperations(bucket HourBucket) bool {
	return !r.operationsStart.IsZero() && bucket.End().Before(r.operationsStart)
}

// GateHour maps a bucket's state onto the API error surface: nil when the
// bucket is servable, a typed error otherwise.
func (r *Resolver) GateHour(bucket HourBucket, completed bool) error {
	switch r.Classify(bucket, completed) {
	case StateFuture:
		return apperrors.NewNotFound("future_time", "requested hour has not yet elapsed")
	case StateExpired:
		if r.BeforeOperations(bucket) {
			return apperrors.NewNotFound("no_operation", "requested hour predates the start of operations")
		}
		return apperrors.NewNotFound("data_expired", "requested hour is outside the retention window")
	case StatePending:
		return apperrors.NewProcessing("data_processing", "requested hour has not been materialized yet")
	}
	return nil
}

// MaxRecentRange bounds the recent-events query window.
const MaxRecentRange = 14 * 24 * time.Hour

// ValidateRecentRange checks a millisecond-epoch [start, end) pair against the
// recent-events constraints and returns the parsed instants on success.
func (r *Resolver) ValidateRecentRange(startMS, endMS int64) (time.Time, time.Time, error) {
	start := time.UnixMilli(startMS).UTC()
	end := time.UnixMilli(endMS).UTC()
	now := r.clock.Now().UTC()

	if !start.Before(end) {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid_time_range", "start_time must be before end_time")
	}
	if end.After(now) {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid_time_range", "end_time must not be in the future")
	}
	if end.Sub(start) > MaxRecentRange {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid_time_range", "time range must not exceed 14 days")
	}
	if start.Before(now.Add(-MaxRecentRange)) {
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid_time_range", "start_time is older than the 14 day retention window")
	}
	return start, end, nil
}
