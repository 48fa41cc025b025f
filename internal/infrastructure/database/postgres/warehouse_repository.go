package postgres

import (
	"context"
	"fmt"
	"time"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/infrastructure/database/postgres/models"
)

// WarehouseRepository implements fleet.Warehouse over the raw tables.
type WarehouseRepository struct {
	db *DB
}

func NewWarehouseRepository(db *DB) fleet.Warehouse {
	return &WarehouseRepository{db: db}
}

func (r *WarehouseRepository) LocationsInRange(ctx context.Context, from, to time.Time) ([]fleet.RawLocationSample, error) {
	var rows []models.RobotLocationModel
	err := r.db.DB.WithContext(ctx).
		Where("captured_at >= ? AND captured_at < ?", from, to).
		Order("captured_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}

	samples := make([]fleet.RawLocationSample, len(rows))
	for i, row := range rows {
		samples[i] = toLocationSample(&row)
	}
	return samples, nil
}

func (r *WarehouseRepository) LatestLocations(ctx context.Context, since time.Time) ([]fleet.RawLocationSample, error) {
	var rows []models.RobotLocationModel
	err := r.db.DB.WithContext(ctx).Raw(`
        SELECT robot_id, latitude, longitude, accuracy, battery, captured_at
        FROM (
            SELECT *, ROW_NUMBER() OVER (PARTITION BY robot_id ORDER BY captured_at DESC) AS rn
            FROM robot_locations
            WHERE captured_at >= ?
        ) ranked
        WHERE rn = 1
        ORDER BY robot_id
    `, since).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest locations: %w", err)
	}

	samples := make([]fleet.RawLocationSample, len(rows))
	for i, row := range rows {
		samples[i] = toLocationSample(&row)
	}
	return samples, nil
}

func (r *WarehouseRepository) JobStepsInRange(ctx context.Context, from, to time.Time) ([]fleet.RawJobStep, error) {
	var rows []models.JobStepModel
	err := r.db.DB.WithContext(ctx).
		Where("step_end >= ? AND step_end < ?", from, to).
		Order("step_end ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load job steps: %w", err)
	}

	steps := make([]fleet.RawJobStep, len(rows))
	for i, row := range rows {
		steps[i] = toJobStep(&row)
	}
	return steps, nil
}

func (r *WarehouseRepository) ActiveJobs(ctx context.Context, at time.Time) ([]fleet.RawJobStep, error) {
	var rows []models.JobStepModel
	err := r.db.DB.WithContext(ctx).
		Where("step_start <= ? AND step_end >= ?", at, at).
		Order("step_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active jobs: %w", err)
	}

	steps := make([]fleet.RawJobStep, len(rows))
	for i, row := range rows {
		steps[i] = toJobStep(&row)
	}
	return steps, nil
}

func toLocationSample(m *models.RobotLocationModel) fleet.RawLocationSample {
	return fleet.RawLocationSample{
		RobotID:    m.RobotID,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Accuracy:   m.Accuracy,
		Battery:    m.Battery,
		CapturedAt: m.CapturedAt,
	}
}

func toJobStep(m *models.JobStepModel) fleet.RawJobStep {
	return fleet.RawJobStep{
		JobID:     m.JobID,
		StepID:    m.StepID,
		RobotID:   m.RobotID,
		StepType:  fleet.StepType(m.StepType),
		StepStart: m.StepStart,
		StepEnd:   m.StepEnd,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
	}
}
