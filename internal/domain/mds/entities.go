// Package mds defines the externally visible entity shapes of the MDS 2.0
// provider surface. Entities are rendered fresh per response and never
// persisted.
package mds

import (
	"github.com/google/uuid"
)

// GeoJSONPoint is a Point geometry. Coordinates are [longitude, latitude].
type GeoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// GeoJSONFeature wraps a geometry the way MDS location fields expect.
type GeoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   GeoJSONPoint   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// NewPointFeature builds a Feature around a Point at (lat, lng). Callers are
// responsible for validating the coordinates first.
func NewPointFeature(lat, lng float64) GeoJSONFeature {
	return GeoJSONFeature{
		Type: "Feature",
		Geometry: GeoJSONPoint{
			Type:        "Point",
			Coordinates: []float64{lng, lat},
		},
		Properties: map[string]any{},
	}
}

// GPS is the flat location object used inside events and telemetry.
type GPS struct {
	Lat                float64 `json:"lat"`
	Lng                float64 `json:"lng"`
	HorizontalAccuracy float64 `json:"horizontal_accuracy,omitempty"`
}

// VehicleAttributes holds the delivery-robots attribute set.
type VehicleAttributes struct {
	VIN          string `json:"vin,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Vehicle is the static inventory record for one robot.
type Vehicle struct {
	DeviceID                uuid.UUID         `json:"device_id"`
	VehicleID               string            `json:"vehicle_id"`
	ProviderID              uuid.UUID         `json:"provider_id"`
	VehicleType             string            `json:"vehicle_type"`
	PropulsionTypes         []string          `json:"propulsion_types"`
	Manufacturer            string            `json:"mfgr,omitempty"`
	AccessibilityAttributes []string          `json:"accessibility_attributes"`
	VehicleAttributes       VehicleAttributes `json:"vehicle_attributes"`
}

// VehicleStatus is the near-real-time view of one robot.
type VehicleStatus struct {
	DeviceID        uuid.UUID       `json:"device_id"`
	ProviderID      uuid.UUID       `json:"provider_id"`
	VehicleState    VehicleState    `json:"vehicle_state"`
	LastEventTime   int64           `json:"last_event_time"`
	LastEventTypes  []EventType     `json:"last_event_types"`
	CurrentLocation *GeoJSONFeature `json:"current_location,omitempty"`
	BatteryPercent  float64         `json:"battery_percent"`
	TripIDs         []uuid.UUID     `json:"trip_ids,omitempty"`
}

// Trip is one completed delivery leg.
type Trip struct {
	ProviderID    uuid.UUID      `json:"provider_id"`
	DeviceID      uuid.UUID      `json:"device_id"`
	TripID        uuid.UUID      `json:"trip_id"`
	TripType      string         `json:"trip_type"`
	StartTime     int64          `json:"start_time"`
	EndTime       int64          `json:"end_time"`
	Duration      int64          `json:"duration"`
	Distance      int            `json:"distance"`
	StartLocation GeoJSONFeature `json:"start_location"`
	EndLocation   GeoJSONFeature `json:"end_location"`
}

// TelemetryPoint is one GPS fix attributed to a trip.
type TelemetryPoint struct {
	ProviderID  uuid.UUID   `json:"provider_id"`
	DeviceID    uuid.UUID   `json:"device_id"`
	TelemetryID uuid.UUID   `json:"telemetry_id"`
	Timestamp   int64       `json:"timestamp"`
	TripIDs     []uuid.UUID `json:"trip_ids"`
	JourneyID   uuid.UUID   `json:"journey_id"`
	Location    GPS         `json:"location"`
}

// Event is one state change. EventTypes is always an array, even when a
// single type applies.
type Event struct {
	EventID         uuid.UUID       `json:"event_id"`
	ProviderID      uuid.UUID       `json:"provider_id"`
	DeviceID        uuid.UUID       `json:"device_id"`
	EventTypes      []EventType     `json:"event_types"`
	VehicleState    VehicleState    `json:"vehicle_state"`
	Timestamp       int64           `json:"timestamp"`
	PublicationTime int64           `json:"publication_time"`
	Location        *GeoJSONFeature `json:"location,omitempty"`
}
