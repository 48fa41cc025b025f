// Package fleet holds the internal data model of the robot fleet: the strict
// schemas of the raw warehouse rows the engine reads and of the hour-scoped
// aggregates the materializer writes, plus the interfaces binding the two.
package fleet

import "time"

// RawLocationSample is one GPS fix reported by a robot. Raw rows are
// append-only and owned by upstream ingestion; the engine only reads them.
type RawLocationSample struct {
	RobotID    string
	Latitude   float64
	Longitude  float64
	// Accuracy is the horizontal error estimate of the fix, in meters.
	// Lower is better.
	Accuracy   float64
	Battery    float64
	CapturedAt time.Time
}

// StepType classifies one leg of a delivery job.
type StepType string

const (
	StepTypePickup  StepType = "pickup"
	StepTypeDropoff StepType = "dropoff"
	StepTypeReturn  StepType = "return"
)

// IsStart reports whether this step type opens a trip.
func (s StepType) IsStart() bool { return s == StepTypePickup }

// IsEnd reports whether this step type closes a trip.
func (s StepType) IsEnd() bool { return s == StepTypeDropoff || s == StepTypeReturn }

// RawJobStep is one leg of a delivery job as recorded by the warehouse.
type RawJobStep struct {
	JobID     string
	StepID    string
	RobotID   string
	StepType  StepType
	StepStart time.Time
	StepEnd   time.Time
	Latitude  float64
	Longitude float64
}
