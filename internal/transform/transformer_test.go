package transform

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/identity"
)

func newTestTransformer() *Transformer {
	return NewTransformer(identity.NewDeriver("fleet-delivery-robots"), 10.0, 6, zap.NewNop())
}

func TestMapStatusExhaustive(t *testing.T) {
	statuses := []fleet.RobotStatus{
		fleet.StatusIdle, fleet.StatusReserved, fleet.StatusOnJob,
		fleet.StatusPaused, fleet.StatusMaintenance, fleet.StatusOffline,
		fleet.StatusLost, fleet.StatusOutOfZone, fleet.StatusRetired,
	}
	for _, s := range statuses {
		state, err := MapStatus(s)
		require.NoError(t, err, "status %q", s)
		assert.NotEmpty(t, state)
	}

	_, err := MapStatus(fleet.RobotStatus("charging"))
	assert.Error(t, err)
}

func TestTripRendering(t *testing.T) {
	tr := newTestTransformer()
	start := time.Date(2025, 9, 8, 23, 10, 0, 0, time.UTC)
	end := time.Date(2025, 9, 8, 23, 45, 0, 0, time.UTC)

	mt := fleet.MaterializedTrip{
		TripID:         uuid.New(),
		RobotID:        "4B017",
		JobID:          "job-9",
		StepID:         "step-2",
		TripStart:      start,
		TripEnd:        end,
		StartLatitude:  37.774929,
		StartLongitude: -122.419416,
		EndLatitude:    37.784000,
		EndLongitude:   -122.409000,
		Status:         "completed",
	}

	trip, err := tr.Trip(mt)
	require.NoError(t, err)

	assert.Equal(t, int64(2100000), trip.Duration)
	assert.Equal(t, start.UnixMilli(), trip.StartTime)
	assert.Equal(t, end.UnixMilli(), trip.EndTime)
	assert.Equal(t, mds.TripTypeDelivery, trip.TripType)
	assert.Equal(t, []float64{-122.419416, 37.774929}, trip.StartLocation.Geometry.Coordinates)
	// Roughly 1.35km between the endpoints.
	assert.InDelta(t, 1350, trip.Distance, 100)
}

func TestTripsDropsUnrenderable(t *testing.T) {
	tr := newTestTransformer()
	good := fleet.MaterializedTrip{
		TripID: uuid.New(), RobotID: "4B001",
		TripStart: time.Now().Add(-time.Hour), TripEnd: time.Now(),
		StartLatitude: 1, StartLongitude: 1, EndLatitude: 2, EndLongitude: 2,
	}
	bad := good
	bad.TripID = uuid.New()
	bad.EndLatitude = 91 // out of range

	nan := good
	nan.TripID = uuid.New()
	nan.StartLongitude = math.NaN()

	out := tr.Trips([]fleet.MaterializedTrip{good, bad, nan})
	require.Len(t, out, 1)
	assert.Equal(t, good.TripID, out[0].TripID)
}

func TestTelemetryPoints(t *testing.T) {
	tr := newTestTransformer()
	start := time.Date(2025, 9, 8, 23, 10, 0, 0, time.UTC)
	end := time.Date(2025, 9, 8, 23, 45, 0, 0, time.UTC)
	mt := fleet.MaterializedTrip{
		TripID: uuid.New(), RobotID: "4B017", JobID: "job-9",
		TripStart: start, TripEnd: end,
	}

	sample := func(offset time.Duration, accuracy float64) fleet.RawLocationSample {
		return fleet.RawLocationSample{
			RobotID:    "4B017",
			Latitude:   37.7749295123,
			Longitude:  -122.4194155987,
			Accuracy:   accuracy,
			Battery:    80,
			CapturedAt: start.Add(offset),
		}
	}

	samples := []fleet.RawLocationSample{
		sample(20*time.Minute, 5),             // in span, accurate
		sample(5*time.Minute, 3),              // in span, accurate, earlier
		sample(10*time.Minute, 25),            // accuracy too coarse
		sample(-time.Minute, 5),               // before span
		sample(40*time.Minute, 5),             // after span
		{RobotID: "4C002", Accuracy: 1, CapturedAt: start.Add(time.Minute)}, // other robot
	}

	out := tr.TelemetryPoints(mt, samples)
	require.Len(t, out, 2)

	// Ascending by timestamp.
	assert.Equal(t, start.Add(5*time.Minute).UnixMilli(), out[0].Timestamp)
	assert.Equal(t, start.Add(20*time.Minute).UnixMilli(), out[1].Timestamp)

	// Coordinates rounded to 6 decimals.
	assert.Equal(t, 37.77493, out[0].Location.Lat)
	assert.Equal(t, -122.419416, out[0].Location.Lng)

	assert.Equal(t, []uuid.UUID{mt.TripID}, out[0].TripIDs)
	assert.Equal(t, tr.ids.JourneyID("job-9"), out[0].JourneyID)

	// Same inputs, same telemetry ids.
	again := tr.TelemetryPoints(mt, samples)
	assert.Equal(t, out[0].TelemetryID, again[0].TelemetryID)
}

func TestLiveVehicleStatusRecency(t *testing.T) {
	tr := newTestTransformer()
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	tripID := uuid.New()

	sample := func(age time.Duration) fleet.RawLocationSample {
		return fleet.RawLocationSample{
			RobotID: "4B017", Latitude: 37.77, Longitude: -122.41,
			Battery: 64, CapturedAt: now.Add(-age),
		}
	}

	tests := []struct {
		name  string
		age   time.Duration
		trips []uuid.UUID
		want  mds.VehicleState
	}{
		{"fresh and idle", time.Minute, nil, mds.StateAvailable},
		{"fresh with active trip", time.Minute, []uuid.UUID{tripID}, mds.StateOnTrip},
		{"degraded", 10 * time.Minute, nil, mds.StateNonOperational},
		{"degraded with active trip still degraded", 10 * time.Minute, []uuid.UUID{tripID}, mds.StateNonOperational},
		{"stale", 2 * time.Hour, []uuid.UUID{tripID}, mds.StateNonContactable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tr.LiveVehicleStatus(sample(tt.age), tt.trips, now)
			assert.Equal(t, tt.want, status.VehicleState)
			assert.Equal(t, now.Add(-tt.age).UnixMilli(), status.LastEventTime)
			assert.NotEmpty(t, status.LastEventTypes)
			if tt.want == mds.StateOnTrip {
				assert.Equal(t, tt.trips, status.TripIDs)
			} else {
				assert.Empty(t, status.TripIDs)
			}
		})
	}
}

func TestEventRendering(t *testing.T) {
	tr := newTestTransformer()
	published := time.Date(2025, 9, 9, 0, 5, 0, 0, time.UTC)
	me := fleet.MaterializedEvent{
		EventID:   uuid.New(),
		RobotID:   "4B017",
		EventType: "trip_start",
		EventTime: time.Date(2025, 9, 8, 23, 10, 0, 0, time.UTC),
		Latitude:  37.77, Longitude: -122.41,
	}

	ev, err := tr.Event(me, published)
	require.NoError(t, err)
	assert.Equal(t, []mds.EventType{mds.EventTripStart}, ev.EventTypes)
	assert.Equal(t, mds.StateOnTrip, ev.VehicleState)
	assert.Equal(t, me.EventTime.UnixMilli(), ev.Timestamp)
	assert.Equal(t, published.UnixMilli(), ev.PublicationTime)
	require.NotNil(t, ev.Location)

	me.EventType = "spontaneous_combustion"
	_, err = tr.Event(me, published)
	assert.Error(t, err)
}

func TestRobotModel(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"4A001", "DR4.0"},
		{"4B017", "DR4.1A"},
		{"4E125", "DR4.3C"},
		{"4E250", "DR4.3C"},
		{"4F310", "DR4.3E"},
		{"4H081", "DR4.4A"},
		{"4A031", "unknown"}, // past the 4A range
		{"9Z001", "unknown"},
		{"4B", "unknown"},
		{"", "unknown"},
		{"4Bxyz", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RobotModel(tt.id), "id %q", tt.id)
	}
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 111195, Haversine(0, 0, 1, 0), 100)
	assert.Zero(t, Haversine(37.77, -122.41, 37.77, -122.41))
}
