package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/infrastructure/database/postgres/models"
)

// MaterializedRepository implements fleet.MaterializedStore over the
// materialized_* tables.
type MaterializedRepository struct {
	db    *DB
	clock clockwork.Clock
}

func NewMaterializedRepository(db *DB, clock clockwork.Clock) fleet.MaterializedStore {
	return &MaterializedRepository{db: db, clock: clock}
}

// ReplaceHour swaps one hour bucket inside a single transaction: the hour's
// trips and events are deleted and re-inserted, snapshots are upserted with a
// monotonic last_updated guard, and the completion marker is written last.
func (r *MaterializedRepository) ReplaceHour(ctx context.Context, hour time.Time, trips []fleet.MaterializedTrip, events []fleet.MaterializedEvent, snapshots []fleet.VehicleSnapshot) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hour_bucket = ?", hour).Delete(&models.TripModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear trips: %w", err)
		}
		if err := tx.Where("hour_bucket = ?", hour).Delete(&models.EventModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear events: %w", err)
		}

		if len(trips) > 0 {
			rows := make([]models.TripModel, len(trips))
			for i, t := range trips {
				rows[i] = toTripModel(&t)
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("failed to insert trips: %w", err)
			}
		}

		if len(events) > 0 {
			rows := make([]models.EventModel, len(events))
			for i, e := range events {
				rows[i] = toEventModel(&e)
			}
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("failed to insert events: %w", err)
			}
		}

		if len(snapshots) > 0 {
			rows := make([]models.VehicleSnapshotModel, len(snapshots))
			for i, s := range snapshots {
				rows[i] = toSnapshotModel(&s)
			}
			// Re-running an old hour must never roll a snapshot backwards, so
			// the upsert only applies when the incoming row is at least as
			// fresh as the stored one.
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "robot_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"latitude", "longitude", "accuracy", "status", "battery", "last_updated",
				}),
				Where: clause.Where{Exprs: []clause.Expression{
					clause.Expr{SQL: "excluded.last_updated >= materialized_vehicle_snapshots.last_updated"},
				}},
			}).CreateInBatches(rows, 500).Error
			if err != nil {
				return fmt.Errorf("failed to upsert snapshots: %w", err)
			}
		}

		run := models.MaterializationRunModel{
			HourBucket:  hour,
			CompletedAt: r.clock.Now().UTC(),
			TripCount:   len(trips),
			EventCount:  len(events),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hour_bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed_at", "trip_count", "event_count"}),
		}).Create(&run).Error
		if err != nil {
			return fmt.Errorf("failed to record materialization run: %w", err)
		}

		return nil
	})
}

func (r *MaterializedRepository) HourCompleted(ctx context.Context, hour time.Time) (bool, error) {
	var run models.MaterializationRunModel
	err := r.db.DB.WithContext(ctx).
		Where("hour_bucket = ?", hour).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check materialization run: %w", err)
	}
	return true, nil
}

func (r *MaterializedRepository) TripsForHour(ctx context.Context, hour time.Time) ([]fleet.MaterializedTrip, error) {
	var rows []models.TripModel
	err := r.db.DB.WithContext(ctx).
		Where("hour_bucket = ?", hour).
		Order("trip_end ASC, trip_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trips: %w", err)
	}

	trips := make([]fleet.MaterializedTrip, len(rows))
	for i, row := range rows {
		trips[i] = toTripEntity(&row)
	}
	return trips, nil
}

func (r *MaterializedRepository) EventsForHour(ctx context.Context, hour time.Time) ([]fleet.MaterializedEvent, error) {
	var rows []models.EventModel
	err := r.db.DB.WithContext(ctx).
		Where("hour_bucket = ?", hour).
		Order("event_time ASC, event_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	events := make([]fleet.MaterializedEvent, len(rows))
	for i, row := range rows {
		events[i] = toEventEntity(&row)
	}
	return events, nil
}

func (r *MaterializedRepository) EventsInRange(ctx context.Context, from, to time.Time) ([]fleet.MaterializedEvent, error) {
	var rows []models.EventModel
	err := r.db.DB.WithContext(ctx).
		Where("event_time >= ? AND event_time < ?", from, to).
		Order("event_time ASC, event_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events in range: %w", err)
	}

	events := make([]fleet.MaterializedEvent, len(rows))
	for i, row := range rows {
		events[i] = toEventEntity(&row)
	}
	return events, nil
}

func (r *MaterializedRepository) Snapshots(ctx context.Context) ([]fleet.VehicleSnapshot, error) {
	var rows []models.VehicleSnapshotModel
	err := r.db.DB.WithContext(ctx).
		Order("robot_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	snapshots := make([]fleet.VehicleSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = toSnapshotEntity(&row)
	}
	return snapshots, nil
}

// Helper functions to convert between domain entities and database models

func toTripModel(t *fleet.MaterializedTrip) models.TripModel {
	return models.TripModel{
		TripID:         t.TripID,
		RobotID:        t.RobotID,
		JobID:          t.JobID,
		StepID:         t.StepID,
		TripStart:      t.TripStart,
		TripEnd:        t.TripEnd,
		StartLatitude:  t.StartLatitude,
		StartLongitude: t.StartLongitude,
		EndLatitude:    t.EndLatitude,
		EndLongitude:   t.EndLongitude,
		Status:         t.Status,
		HourBucket:     t.HourBucket,
	}
}

func toTripEntity(m *models.TripModel) fleet.MaterializedTrip {
	return fleet.MaterializedTrip{
		TripID:         m.TripID,
		RobotID:        m.RobotID,
		JobID:          m.JobID,
		StepID:         m.StepID,
		TripStart:      m.TripStart,
		TripEnd:        m.TripEnd,
		StartLatitude:  m.StartLatitude,
		StartLongitude: m.StartLongitude,
		EndLatitude:    m.EndLatitude,
		EndLongitude:   m.EndLongitude,
		Status:         m.Status,
		HourBucket:     m.HourBucket,
	}
}

func toEventModel(e *fleet.MaterializedEvent) models.EventModel {
	data := e.EventData
	if data == "" {
		data = "{}"
	}
	return models.EventModel{
		EventID:    e.EventID,
		RobotID:    e.RobotID,
		EventType:  e.EventType,
		EventTime:  e.EventTime,
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
		EventData:  data,
		HourBucket: e.HourBucket,
	}
}

func toEventEntity(m *models.EventModel) fleet.MaterializedEvent {
	return fleet.MaterializedEvent{
		EventID:    m.EventID,
		RobotID:    m.RobotID,
		EventType:  m.EventType,
		EventTime:  m.EventTime,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		EventData:  m.EventData,
		HourBucket: m.HourBucket,
	}
}

func toSnapshotModel(s *fleet.VehicleSnapshot) models.VehicleSnapshotModel {
	return models.VehicleSnapshotModel{
		RobotID:     s.RobotID,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		Accuracy:    s.Accuracy,
		Status:      string(s.Status),
		Battery:     s.Battery,
		LastUpdated: s.LastUpdated,
	}
}

func toSnapshotEntity(m *models.VehicleSnapshotModel) fleet.VehicleSnapshot {
	return fleet.VehicleSnapshot{
		RobotID:     m.RobotID,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Accuracy:    m.Accuracy,
		Status:      fleet.RobotStatus(m.Status),
		Battery:     m.Battery,
		LastUpdated: m.LastUpdated,
	}
}
