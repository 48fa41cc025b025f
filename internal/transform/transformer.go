// Package transform renders internal fleet records into MDS 2.0 entities.
// All transformation is stateless and per-record: a record that cannot be
// rendered is dropped and logged, never allowed to fail the batch.
package transform

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/pkg/apperrors"
)

// Recency thresholds for the live vehicle-status derivation. A robot whose
// newest sample is older than staleThreshold is considered unreachable.
const (
	degradedThreshold = 5 * time.Minute
	staleThreshold    = time.Hour
)

// statusToState maps every internal robot status onto the MDS vehicle-state
// vocabulary. The map is exhaustive over fleet.RobotStatus; an unmapped value
// coming out of the warehouse is an upstream data error.
var statusToState = map[fleet.RobotStatus]mds.VehicleState{
	fleet.StatusIdle:        mds.StateAvailable,
	fleet.StatusReserved:    mds.StateReserved,
	fleet.StatusOnJob:       mds.StateOnTrip,
	fleet.StatusPaused:      mds.StateStopped,
	fleet.StatusMaintenance: mds.StateNonOperational,
	fleet.StatusOffline:     mds.StateNonContactable,
	fleet.StatusLost:        mds.StateMissing,
	fleet.StatusOutOfZone:   mds.StateElsewhere,
	fleet.StatusRetired:     mds.StateRemoved,
}

// stateToEventTypes gives the event types that plausibly led into a state,
// used to populate last_event_types on the status feed.
var stateToEventTypes = map[mds.VehicleState][]mds.EventType{
	mds.StateAvailable:      {mds.EventServiceStart},
	mds.StateReserved:       {mds.EventReservationStart},
	mds.StateOnTrip:         {mds.EventTripStart},
	mds.StateStopped:        {mds.EventTripPause},
	mds.StateNonOperational: {mds.EventMaintenance},
	mds.StateNonContactable: {mds.EventCommsLost},
	mds.StateMissing:        {mds.EventNotLocated},
	mds.StateElsewhere:      {mds.EventTripLeaveJurisdiction},
	mds.StateRemoved:        {mds.EventDecommissioned},
}

// MapStatus resolves an internal robot status to its MDS state.
func MapStatus(status fleet.RobotStatus) (mds.VehicleState, error) {
	state, ok := statusToState[status]
	if !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnmappedStatus, status)
	}
	return state, nil
}

// Transformer builds MDS entities from materialized and raw fleet records.
type Transformer struct {
	ids         *identity.Deriver
	minAccuracy float64
	precision   int
	log         *zap.Logger
}

func NewTransformer(ids *identity.Deriver, minAccuracy float64, precision int, log *zap.Logger) *Transformer {
	return &Transformer{
		ids:         ids,
		minAccuracy: minAccuracy,
		precision:   precision,
		log:         log,
	}
}

// AccuracyOK reports whether a sample's horizontal error passes the location
// quality gate. Accuracy is in meters, lower is better.
func (t *Transformer) AccuracyOK(accuracy float64) bool {
	return accuracy <= t.minAccuracy
}

func (t *Transformer) round(v float64) float64 {
	scale := math.Pow10(t.precision)
	return math.Round(v*scale) / scale
}

// point validates and rounds a coordinate pair. The bool result is false when
// the pair cannot be rendered as a GeoJSON position.
func (t *Transformer) point(lat, lng float64) (float64, float64, bool) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return t.round(lat), t.round(lng), true
}

// Vehicle renders the static inventory record for one robot.
func (t *Transformer) Vehicle(robotID string) mds.Vehicle {
	return mds.Vehicle{
		DeviceID:                t.ids.DeviceID(robotID),
		VehicleID:               robotID,
		ProviderID:              t.ids.ProviderID(),
		VehicleType:             mds.VehicleTypeRobot,
		PropulsionTypes:         []string{mds.PropulsionElectric},
		AccessibilityAttributes: []string{},
		VehicleAttributes: mds.VehicleAttributes{
			VIN:          "VIN-" + robotID,
			LicensePlate: robotID,
			Model:        RobotModel(robotID),
		},
	}
}

// LiveVehicleStatus derives the near-real-time status of one robot from its
// newest location sample. Recency of the sample dominates the reported state:
// a silent robot is non-contactable regardless of what the warehouse last
// recorded. activeTrips carries the trips in flight for this robot, if any.
func (t *Transformer) LiveVehicleStatus(sample fleet.RawLocationSample, activeTrips []uuid.UUID, now time.Time) mds.VehicleStatus {
	age := now.Sub(sample.CapturedAt)

	var state mds.VehicleState
	switch {
	case age > staleThreshold:
		state = mds.StateNonContactable
	case age > degradedThreshold:
		state = mds.StateNonOperational
	case len(activeTrips) > 0:
		state = mds.StateOnTrip
	default:
		state = mds.StateAvailable
	}

	status := mds.VehicleStatus{
		DeviceID:       t.ids.DeviceID(sample.RobotID),
		ProviderID:     t.ids.ProviderID(),
		VehicleState:   state,
		LastEventTime:  sample.CapturedAt.UnixMilli(),
		LastEventTypes: stateToEventTypes[state],
		BatteryPercent: sample.Battery,
	}
	if state == mds.StateOnTrip {
		status.TripIDs = activeTrips
	}
	if lat, lng, ok := t.point(sample.Latitude, sample.Longitude); ok {
		feature := mds.NewPointFeature(lat, lng)
		status.CurrentLocation = &feature
	} else {
		t.log.Warn("dropping unrenderable location from vehicle status",
			zap.String("robot_id", sample.RobotID),
			zap.Float64("lat", sample.Latitude),
			zap.Float64("lng", sample.Longitude))
	}
	return status
}

// SnapshotStatus renders the materialized per-robot snapshot as a status
// record, used when the live path is unavailable.
func (t *Transformer) SnapshotStatus(snap fleet.VehicleSnapshot) (mds.VehicleStatus, error) {
	state, err := MapStatus(snap.Status)
	if err != nil {
		return mds.VehicleStatus{}, err
	}
	status := mds.VehicleStatus{
		DeviceID:       t.ids.DeviceID(snap.RobotID),
		ProviderID:     t.ids.ProviderID(),
		VehicleState:   state,
		LastEventTime:  snap.LastUpdated.UnixMilli(),
		LastEventTypes: stateToEventTypes[state],
		BatteryPercent: snap.Battery,
	}
	if lat, lng, ok := t.point(snap.Latitude, snap.Longitude); ok {
		feature := mds.NewPointFeature(lat, lng)
		status.CurrentLocation = &feature
	}
	return status, nil
}

// Trip renders one materialized trip. Duration is milliseconds; distance is
// the great-circle meters between the endpoints, the best available estimate
// without replaying the full track.
func (t *Transformer) Trip(mt fleet.MaterializedTrip) (mds.Trip, error) {
	startLat, startLng, okStart := t.point(mt.StartLatitude, mt.StartLongitude)
	endLat, endLng, okEnd := t.point(mt.EndLatitude, mt.EndLongitude)
	if !okStart || !okEnd {
		return mds.Trip{}, fmt.Errorf("trip %s has unrenderable endpoints", mt.TripID)
	}
	return mds.Trip{
		ProviderID:    t.ids.ProviderID(),
		DeviceID:      t.ids.DeviceID(mt.RobotID),
		TripID:        mt.TripID,
		TripType:      mds.TripTypeDelivery,
		StartTime:     mt.TripStart.UnixMilli(),
		EndTime:       mt.TripEnd.UnixMilli(),
		Duration:      mt.TripEnd.Sub(mt.TripStart).Milliseconds(),
		Distance:      int(math.Round(Haversine(startLat, startLng, endLat, endLng))),
		StartLocation: mds.NewPointFeature(startLat, startLng),
		EndLocation:   mds.NewPointFeature(endLat, endLng),
	}, nil
}

// Trips renders a batch, dropping and logging unrenderable records.
func (t *Transformer) Trips(trips []fleet.MaterializedTrip) []mds.Trip {
	out := make([]mds.Trip, 0, len(trips))
	for _, mt := range trips {
		trip, err := t.Trip(mt)
		if err != nil {
			t.log.Warn("dropping trip", zap.String("trip_id", mt.TripID.String()), zap.Error(err))
			continue
		}
		out = append(out, trip)
	}
	return out
}

// TelemetryPoints renders the samples of one trip's robot captured inside the
// trip span, gated on accuracy, sorted ascending by capture time.
func (t *Transformer) TelemetryPoints(mt fleet.MaterializedTrip, samples []fleet.RawLocationSample) []mds.TelemetryPoint {
	tripID := mt.TripID
	journeyID := t.ids.JourneyID(mt.JobID)
	deviceID := t.ids.DeviceID(mt.RobotID)

	out := make([]mds.TelemetryPoint, 0, len(samples))
	for _, s := range samples {
		if s.RobotID != mt.RobotID {
			continue
		}
		if s.CapturedAt.Before(mt.TripStart) || s.CapturedAt.After(mt.TripEnd) {
			continue
		}
		if !t.AccuracyOK(s.Accuracy) {
			continue
		}
		lat, lng, ok := t.point(s.Latitude, s.Longitude)
		if !ok {
			t.log.Warn("dropping unrenderable telemetry sample",
				zap.String("robot_id", s.RobotID),
				zap.Time("captured_at", s.CapturedAt))
			continue
		}
		ts := s.CapturedAt.UnixMilli()
		out = append(out, mds.TelemetryPoint{
			ProviderID:  t.ids.ProviderID(),
			DeviceID:    deviceID,
			TelemetryID: t.ids.TelemetryID(s.RobotID, ts),
			Timestamp:   ts,
			TripIDs:     []uuid.UUID{tripID},
			JourneyID:   journeyID,
			Location: mds.GPS{
				Lat:                lat,
				Lng:                lng,
				HorizontalAccuracy: s.Accuracy,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Event renders one materialized event. The publication time is when the
// bucket holding the event was materialized.
func (t *Transformer) Event(me fleet.MaterializedEvent, publishedAt time.Time) (mds.Event, error) {
	state, ok := eventTypeToState[mds.EventType(me.EventType)]
	if !ok {
		return mds.Event{}, fmt.Errorf("event %s has unknown type %q", me.EventID, me.EventType)
	}
	ev := mds.Event{
		EventID:         me.EventID,
		ProviderID:      t.ids.ProviderID(),
		DeviceID:        t.ids.DeviceID(me.RobotID),
		EventTypes:      []mds.EventType{mds.EventType(me.EventType)},
		VehicleState:    state,
		Timestamp:       me.EventTime.UnixMilli(),
		PublicationTime: publishedAt.UnixMilli(),
	}
	if lat, lng, ok := t.point(me.Latitude, me.Longitude); ok {
		feature := mds.NewPointFeature(lat, lng)
		ev.Location = &feature
	}
	return ev, nil
}

// Events renders a batch, dropping and logging unrenderable records.
func (t *Transformer) Events(events []fleet.MaterializedEvent, publishedAt time.Time) []mds.Event {
	out := make([]mds.Event, 0, len(events))
	for _, me := range events {
		ev, err := t.Event(me, publishedAt)
		if err != nil {
			t.log.Warn("dropping event", zap.String("event_id", me.EventID.String()), zap.Error(err))
			continue
		}
		out = append(out, ev)
	}
	return out
}

// eventTypeToState gives the vehicle state a robot enters through each event
// type this provider emits.
var eventTypeToState = map[mds.EventType]mds.VehicleState{
	mds.EventTripStart:             mds.StateOnTrip,
	mds.EventTripEnd:               mds.StateAvailable,
	mds.EventTripPause:             mds.StateStopped,
	mds.EventTripLeaveJurisdiction: mds.StateElsewhere,
	mds.EventCommsLost:             mds.StateNonContactable,
	mds.EventCommsRestored:         mds.StateAvailable,
	mds.EventServiceStart:          mds.StateAvailable,
	mds.EventServiceEnd:            mds.StateNonOperational,
	mds.EventMaintenance:           mds.StateNonOperational,
	mds.EventReservationStart:      mds.StateReserved,
	mds.EventLocated:               mds.StateAvailable,
	mds.EventNotLocated:            mds.StateMissing,
	mds.EventDecommissioned:        mds.StateRemoved,
}

// earthRadiusMeters is the mean earth radius used for great-circle distance.
const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// coordinate pairs.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// modelRange maps a robot-id prefix and unit-number range to a hardware
// generation.
type modelRange struct {
	prefix   string
	min, max int
	model    string
}

var modelRanges = []modelRange{
	{"4A", 1, 30, "DR4.0"},
	{"4B", 1, 120, "DR4.1A"},
	{"4C", 1, 100, "DR4.1B"},
	{"4D", 1, 300, "DR4.2A"},
	{"4E", 1, 120, "DR4.3B"},
	{"4E", 121, 130, "DR4.3C"},
	{"4E", 200, 290, "DR4.3C"},
	{"4F", 1, 262, "DR4.3D"},
	{"4F", 301, 322, "DR4.3E"},
	{"4F", 401, 410, "DR4.3F"},
	{"4G", 1, 5, "DR4.3G"},
	{"4H", 1, 81, "DR4.4A"},
}

// RobotModel infers the hardware generation from a robot identifier of the
// form <prefix><unit number>, e.g. "4B017". Unknown patterns map to
// "unknown".
func RobotModel(robotID string) string {
	if len(robotID) < 3 {
		return "unknown"
	}
	prefix := robotID[:2]
	digits := robotID[2:]
	end := len(digits)
	for i, c := range digits {
		if c < '0' || c > '9' {
			end = i
			break
		}
	}
	if end == 0 {
		return "unknown"
	}
	number, err := strconv.Atoi(digits[:end])
	if err != nil {
		return "unknown"
	}
	for _, r := range modelRanges {
		if r.prefix == prefix && number >= r.min && number <= r.max {
			return r.model
		}
	}
	return "unknown"
}
