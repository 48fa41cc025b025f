// Package event implements the historical and recent event use cases.
package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/pkg/apperrors"
)

// Service implements event use cases.
type Service struct {
	store    fleet.MaterializedStore
	tf       *transform.Transformer
	resolver *freshness.Resolver
	log      *zap.Logger
}

func NewService(store fleet.MaterializedStore, tf *transform.Transformer, resolver *freshness.Resolver, log *zap.Logger) *Service {
	return &Service{store: store, tf: tf, resolver: resolver, log: log}
}

// EventsForHour returns the state changes of one materialized hour. Events
// are published when their bucket closes, so the publication time is the
// bucket end.
func (s *Service) EventsForHour(ctx context.Context, hourParam string) ([]mds.Event, error) {
	hour, err := freshness.ParseHour(hourParam)
	if err != nil {
		return nil, apperrors.NewValidation("bad_param", "event_time must be formatted YYYY-MM-DDTHH")
	}

	completed, err := s.store.HourCompleted(ctx, hour.Start)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to check materialization state", err)
	}
	if err := s.resolver.GateHour(hour, completed); err != nil {
		return nil, err
	}

	events, err := s.store.EventsForHour(ctx, hour.Start)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to load events", err)
	}
	return s.tf.Events(events, hour.End()), nil
}

// RecentEvents returns events in an arbitrary [start, end) window within the
// retention horizon. Both bounds are millisecond epochs.
func (s *Service) RecentEvents(ctx context.Context, startMS, endMS int64) ([]mds.Event, error) {
	start, end, err := s.resolver.ValidateRecentRange(startMS, endMS)
	if err != nil {
		return nil, err
	}

	raw, err := s.store.EventsInRange(ctx, start, end)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to load events", err)
	}

	events := make([]mds.Event, 0, len(raw))
	for _, me := range raw {
		ev, err := s.tf.Event(me, me.HourBucket.Add(time.Hour))
		if err != nil {
			s.log.Warn("dropping event", zap.String("event_id", me.EventID.String()), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
