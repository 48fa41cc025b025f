// Package vehicle implements the vehicles use cases: the static fleet
// inventory and the near-real-time status feed.
package vehicle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/cache"
	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/internal/observability"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/pkg/apperrors"
)

const statusCacheKey = "vehicles:status"

// StatusResult is the cached product of one live-status computation.
type StatusResult struct {
	Statuses    []mds.VehicleStatus
	LastUpdated int64
}

// Service implements vehicle use cases.
type Service struct {
	store     fleet.MaterializedStore
	warehouse fleet.Warehouse
	ids       *identity.Deriver
	tf        *transform.Transformer
	cache     *cache.Cache
	metrics   *observability.Metrics
	clock     clockwork.Clock
	log       *zap.Logger

	statusTTL time.Duration
	lookback  time.Duration
}

func NewService(store fleet.MaterializedStore, warehouse fleet.Warehouse, ids *identity.Deriver, tf *transform.Transformer, c *cache.Cache, metrics *observability.Metrics, clock clockwork.Clock, log *zap.Logger, statusTTL, lookback time.Duration) *Service {
	return &Service{
		store:     store,
		warehouse: warehouse,
		ids:       ids,
		tf:        tf,
		cache:     c,
		metrics:   metrics,
		clock:     clock,
		log:       log,
		statusTTL: statusTTL,
		lookback:  lookback,
	}
}

// ListVehicles renders the fleet inventory from the materialized snapshots.
// The second result is the newest snapshot time in milliseconds.
func (s *Service) ListVehicles(ctx context.Context) ([]mds.Vehicle, int64, error) {
	snapshots, err := s.store.Snapshots(ctx)
	if err != nil {
		return nil, 0, apperrors.NewUpstream("internal_error", "failed to load vehicle snapshots", err)
	}

	vehicles := make([]mds.Vehicle, 0, len(snapshots))
	var lastUpdated int64
	for _, snap := range snapshots {
		vehicles = append(vehicles, s.tf.Vehicle(snap.RobotID))
		if ms := snap.LastUpdated.UnixMilli(); ms > lastUpdated {
			lastUpdated = ms
		}
	}
	return vehicles, lastUpdated, nil
}

// GetVehicle looks up one robot by its derived device identifier.
func (s *Service) GetVehicle(ctx context.Context, deviceID uuid.UUID) (*mds.Vehicle, error) {
	snapshots, err := s.store.Snapshots(ctx)
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to load vehicle snapshots", err)
	}

	for _, snap := range snapshots {
		if s.ids.DeviceID(snap.RobotID) == deviceID {
			v := s.tf.Vehicle(snap.RobotID)
			return &v, nil
		}
	}
	return nil, apperrors.NewNotFound("device_not_found", fmt.Sprintf("no vehicle with device_id %s", deviceID))
}

// VehicleStatuses returns the live per-robot status feed. The computation
// reads the warehouse directly, so results are cached for a short TTL and
// concurrent callers share one computation.
func (s *Service) VehicleStatuses(ctx context.Context) (*StatusResult, error) {
	v, hit, err := s.cache.GetOrCompute(statusCacheKey, s.statusTTL, func() (any, error) {
		return s.computeStatuses(ctx)
	})
	if err != nil {
		return nil, apperrors.NewUpstream("internal_error", "failed to compute vehicle statuses", err)
	}
	if hit {
		s.metrics.StatusCache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.StatusCache.WithLabelValues("miss").Inc()
	}
	return v.(*StatusResult), nil
}

func (s *Service) computeStatuses(ctx context.Context) (*StatusResult, error) {
	now := s.clock.Now().UTC()

	samples, err := s.warehouse.LatestLocations(ctx, now.Add(-s.lookback))
	if err != nil {
		return nil, fmt.Errorf("load latest locations: %w", err)
	}
	active, err := s.warehouse.ActiveJobs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load active jobs: %w", err)
	}

	activeTrips := make(map[string][]uuid.UUID)
	for _, step := range active {
		activeTrips[step.RobotID] = append(activeTrips[step.RobotID], s.ids.TripID(step.JobID, step.StepID))
	}

	result := &StatusResult{Statuses: make([]mds.VehicleStatus, 0, len(samples))}
	seen := make(map[string]bool, len(samples))
	for _, sample := range samples {
		seen[sample.RobotID] = true
		status := s.tf.LiveVehicleStatus(sample, activeTrips[sample.RobotID], now)
		result.Statuses = append(result.Statuses, status)
		if status.LastEventTime > result.LastUpdated {
			result.LastUpdated = status.LastEventTime
		}
	}

	// Robots with no recent sample still belong in the feed; their last
	// materialized snapshot is the best remaining view.
	snapshots, err := s.store.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	for _, snap := range snapshots {
		if seen[snap.RobotID] {
			continue
		}
		status, err := s.tf.SnapshotStatus(snap)
		if err != nil {
			s.log.Warn("dropping snapshot from status feed",
				zap.String("robot_id", snap.RobotID),
				zap.Error(err))
			continue
		}
		result.Statuses = append(result.Statuses, status)
		if status.LastEventTime > result.LastUpdated {
			result.LastUpdated = status.LastEventTime
		}
	}

	s.log.Debug("vehicle statuses computed",
		zap.Int("vehicles", len(result.Statuses)),
		zap.Int("on_trip", len(activeTrips)))
	return result, nil
}
