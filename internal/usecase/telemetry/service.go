// Package telemetry implements the historical telemetry use case: the GPS
// tracks of trips that ended in a given hour.
package telemetry

import (
	"context"
	"time"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/pkg/apperrors"
)

// Service implements telemetry use cases.
type Service struct {
	store     fleet.MaterializedStore
	warehouse fleet.Warehouse
	tf        *transform.Transformer
	resolver  *freshness.Resolver
}

func NewService(store fleet.MaterializedStore, warehouse fleet.Warehouse, tf *transform.Transformer, resolver *freshness.Resolver) *Service {
	return &Service{store: store, warehouse: warehouse, tf: tf, resolver: resolver}
}

// TelemetryForHour returns the telemetry of every trip that ended in the
// given hour. Trips may begin before the hour, so the sample window spans
// from the earliest trip start to the latest trip end.
func (s *Service) TelemetryForHour(ctx context.Context, hourParam string) ([]mds.TelemetryPoint, error) {
	hour, err := freshness.ParseHour(hourParam)
	if err != nil {
		return nil, apperrors.NewValidation("bad_param", "telemetry_time must be formatted YYYY-MM-DDTHH")
	}

	completed, err := s.store.HourCompleted(ctx, hour.Start)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to check materialization state", err)
	}
	if err := s.resolver.GateHour(hour, completed); err != nil {
		return nil, err
	}

	trips, err := s.store.TripsForHour(ctx, hour.Start)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to load trips", err)
	}
	if len(trips) == 0 {
		return []mds.TelemetryPoint{}, nil
	}

	var from, to time.Time
	for i, t := range trips {
		if i == 0 || t.TripStart.Before(from) {
			from = t.TripStart
		}
		if t.TripEnd.After(to) {
			to = t.TripEnd
		}
	}
	// The window is closed-open; extend by a second so samples captured at
	// the exact last trip end are included.
	samples, err := s.warehouse.LocationsInRange(ctx, from, to.Add(time.Second))
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to load location samples", err)
	}

	points := make([]mds.TelemetryPoint, 0, len(samples))
	for _, t := range trips {
		points = append(points, s.tf.TelemetryPoints(t, samples)...)
	}
	return points, nil
}
