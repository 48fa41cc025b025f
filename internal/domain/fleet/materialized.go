package fleet

import (
	"time"

	"github.com/google/uuid"
)

// RobotStatus is the internal status vocabulary. The transformer maps it onto
// the MDS vehicle-state vocabulary through an exhaustive lookup; an internal
// status missing from that lookup is a configuration error.
type RobotStatus string

const (
	StatusIdle        RobotStatus = "idle"
	StatusReserved    RobotStatus = "reserved"
	StatusOnJob       RobotStatus = "on_job"
	StatusPaused      RobotStatus = "paused"
	StatusMaintenance RobotStatus = "maintenance"
	StatusOffline     RobotStatus = "offline"
	StatusLost        RobotStatus = "lost"
	StatusOutOfZone   RobotStatus = "out_of_zone"
	StatusRetired     RobotStatus = "retired"
)

// VehicleSnapshot is the per-robot current view, one row per robot,
// overwritten on each materialization cycle. LastUpdated is monotonically
// non-decreasing per robot; the store enforces it on upsert.
type VehicleSnapshot struct {
	RobotID     string
	Latitude    float64
	Longitude   float64
	Accuracy    float64
	Status      RobotStatus
	Battery     float64
	LastUpdated time.Time
}

// MaterializedTrip is one completed trip assigned to the hour bucket its end
// falls in. Rows for a closed hour are immutable but idempotently
// re-computable.
type MaterializedTrip struct {
	TripID         uuid.UUID
	RobotID        string
	JobID          string
	StepID         string
	TripStart      time.Time
	TripEnd        time.Time
	StartLatitude  float64
	StartLongitude float64
	EndLatitude    float64
	EndLongitude   float64
	Status         string
	HourBucket     time.Time
}

// MaterializedEvent is one derived state change. EventID is a pure function
// of (provider, robot, event time, event type), so re-materializing the same
// raw input can never duplicate a logical event.
type MaterializedEvent struct {
	EventID    uuid.UUID
	RobotID    string
	EventType  string
	EventTime  time.Time
	Latitude   float64
	Longitude  float64
	EventData  string
	HourBucket time.Time
}
