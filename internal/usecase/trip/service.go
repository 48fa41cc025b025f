// Package trip implements the historical trips use case.
package trip

import (
	"context"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/pkg/apperrors"
)

// Service implements trip use cases.
type Service struct {
	store    fleet.MaterializedStore
	tf       *transform.Transformer
	resolver *freshness.Resolver
}

func NewService(store fleet.MaterializedStore, tf *transform.Transformer, resolver *freshness.Resolver) *Service {
	return &Service{store: store, tf: tf, resolver: resolver}
}

// TripsForHour returns the trips that ended in the given hour. An empty slice
// with a nil error means the hour is materialized but had no trips.
func (s *Service) TripsForHour(ctx context.Context, hourParam string) ([]mds.Trip, error) {
	hour, err := freshness.ParseHour(hourParam)
	if err != nil {
		return nil, apperrors.NewValidation("bad_param", "end_time must be formatted YYYY-MM-DDTHH")
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
	return s.tf.Trips(trips), nil
}
