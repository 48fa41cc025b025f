// Package models holds the gorm row shapes. Raw tables (robot_locations,
// job_steps) are owned by the upstream ingestion pipeline and only read here;
// the materialized_* tables are owned by the materializer.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RobotLocationModel is one GPS fix in the raw warehouse.
type RobotLocationModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	RobotID    string    `gorm:"type:varchar(64);not null;index:idx_robot_locations_robot_time,priority:1"`
	Latitude   float64   `gorm:"not null"`
	Longitude  float64   `gorm:"not null"`
	Accuracy   float64   `gorm:"not null"`
	Battery    float64   `gorm:"not null"`
	CapturedAt time.Time `gorm:"not null;index:idx_robot_locations_robot_time,priority:2;index:idx_robot_locations_time"`
}

func (RobotLocationModel) TableName() string {
	return "robot_locations"
}

// JobStepModel is one leg of a delivery job in the raw warehouse.
type JobStepModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	JobID     string    `gorm:"type:varchar(64);not null;index"`
	StepID    string    `gorm:"type:varchar(64);not null"`
	RobotID   string    `gorm:"type:varchar(64);not null;index"`
	StepType  string    `gorm:"type:varchar(32);not null"`
	StepStart time.Time `gorm:"not null"`
	StepEnd   time.Time `gorm:"not null;index:idx_job_steps_end"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
}

func (JobStepModel) TableName() string {
	return "job_steps"
}

// VehicleSnapshotModel is the current per-robot view, one row per robot.
type VehicleSnapshotModel struct {
	RobotID     string    `gorm:"type:varchar(64);primaryKey"`
	Latitude    float64   `gorm:"not null"`
	Longitude   float64   `gorm:"not null"`
	Accuracy    float64   `gorm:"not null"`
	Status      string    `gorm:"type:varchar(32);not null"`
	Battery     float64   `gorm:"not null"`
	LastUpdated time.Time `gorm:"not null"`
}

func (VehicleSnapshotModel) TableName() string {
	return "materialized_vehicle_snapshots"
}

// TripModel is one completed trip keyed by its derived identifier.
type TripModel struct {
	TripID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RobotID        string    `gorm:"type:varchar(64);not null;index"`
	JobID          string    `gorm:"type:varchar(64);not null"`
	StepID         string    `gorm:"type:varchar(64);not null"`
	TripStart      time.Time `gorm:"not null"`
	TripEnd        time.Time `gorm:"not null"`
	StartLatitude  float64   `gorm:"not null"`
	StartLongitude float64   `gorm:"not null"`
	EndLatitude    float64   `gorm:"not null"`
	EndLongitude   float64   `gorm:"not null"`
	Status         string    `gorm:"type:varchar(32);not null"`
	HourBucket     time.Time `gorm:"not null;index:idx_materialized_trips_hour"`
}

func (TripModel) TableName() string {
	return "materialized_trips"
}

// EventModel is one derived state change keyed by its derived identifier.
type EventModel struct {
	EventID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RobotID    string    `gorm:"type:varchar(64);not null;index"`
	EventType  string    `gorm:"type:varchar(48);not null"`
	EventTime  time.Time `gorm:"not null;index:idx_materialized_events_time"`
	Latitude   float64   `gorm:"not null"`
	Longitude  float64   `gorm:"not null"`
	EventData  string    `gorm:"type:jsonb;default:'{}'"`
	HourBucket time.Time `gorm:"not null;index:idx_materialized_events_hour"`
}

func (EventModel) TableName() string {
	return "materialized_events"
}

// MaterializationRunModel marks an hour whose materialization completed. The
// row is written in the same transaction as the hour's aggregates, so its
// presence is the definition of READY.
type MaterializationRunModel struct {
	HourBucket  time.Time `gorm:"primaryKey"`
	CompletedAt time.Time `gorm:"not null"`
	TripCount   int       `gorm:"not null"`
	EventCount  int       `gorm:"not null"`
}

func (MaterializationRunModel) TableName() string {
	return "materialization_runs"
}
