package fleet

import (
	"context"
	"time"
)

// Warehouse is the raw-data adapter contract. Implementations read the
// analytical warehouse; any row failing the strict schema is dropped at the
// adapter boundary as a per-record anomaly, never surfaced as a type error.
type Warehouse interface {
	// LocationsInRange returns all samples captured in [from, to), ordered
	// by capture time ascending.
	LocationsInRange(ctx context.Context, from, to time.Time) ([]RawLocationSample, error)

	// LatestLocations returns the newest sample per robot captured since the
	// given instant. Serves the live vehicle-status path.
	LatestLocations(ctx context.Context, since time.Time) ([]RawLocationSample, error)

	// JobStepsInRange returns all job steps whose end falls in [from, to).
	JobStepsInRange(ctx context.Context, from, to time.Time) ([]RawJobStep, error)

	// ActiveJobs returns the steps of jobs in flight at the given instant.
	ActiveJobs(ctx context.Context, at time.Time) ([]RawJobStep, error)
}

// MaterializedStore owns the hour-scoped aggregates. The materializer is the
// only writer; a given hour is replaced atomically so readers observe either
// the old complete bucket or the new one, never a mix.
type MaterializedStore interface {
	// ReplaceHour atomically swaps the trips and events of one hour bucket,
	// upserts the vehicle snapshots (keeping LastUpdated monotonic per
	// robot), and records the completion marker for the hour.
	ReplaceHour(ctx context.Context, hour time.Time, trips []MaterializedTrip, events []MaterializedEvent, snapshots []VehicleSnapshot) error

	// HourCompleted reports whether a materialization run has completed for
	// the hour. Distinguishes PENDING from READY.
	HourCompleted(ctx context.Context, hour time.Time) (bool, error)

	TripsForHour(ctx context.Context, hour time.Time) ([]MaterializedTrip, error)
	EventsForHour(ctx context.Context, hour time.Time) ([]MaterializedEvent, error)

	// EventsInRange returns events with EventTime in [from, to), ordered by
	// event time ascending. Serves the recent-events path.
	EventsInRange(ctx context.Context, from, to time.Time) ([]MaterializedEvent, error)

	// Snapshots returns the current per-robot snapshots.
	Snapshots(ctx context.Context) ([]VehicleSnapshot, error)
}
