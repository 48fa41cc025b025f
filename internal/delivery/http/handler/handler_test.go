package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/cache"
	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/internal/observability"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/internal/usecase/event"
	"fleet-mds-provider/internal/usecase/telemetry"
	"fleet-mds-provider/internal/usecase/trip"
	"fleet-mds-provider/internal/usecase/vehicle"
	"fleet-mds-provider/pkg/utils"
)

var testNow = time.Date(2025, 9, 15, 12, 30, 0, 0, time.UTC)

type fakeStore struct {
	completedHours map[time.Time]bool
	trips          []fleet.MaterializedTrip
	events         []fleet.MaterializedEvent
	snapshots      []fleet.VehicleSnapshot
}

func (f *fakeStore) ReplaceHour(context.Context, time.Time, []fleet.MaterializedTrip, []fleet.MaterializedEvent, []fleet.VehicleSnapshot) error {
	return nil
}

func (f *fakeStore) HourCompleted(_ context.Context, hour time.Time) (bool, error) {
	return f.completedHours[hour], nil
}

func (f *fakeStore) TripsForHour(_ context.Context, hour time.Time) ([]fleet.MaterializedTrip, error) {
	var out []fleet.MaterializedTrip
	for _, t := range f.trips {
		if t.HourBucket.Equal(hour) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) EventsForHour(_ context.Context, hour time.Time) ([]fleet.MaterializedEvent, error) {
	var out []fleet.MaterializedEvent
	for _, e := range f.events {
		if e.HourBucket.Equal(hour) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) EventsInRange(_ context.Context, from, to time.Time) ([]fleet.MaterializedEvent, error) {
	var out []fleet.MaterializedEvent
	for _, e := range f.events {
		if !e.EventTime.Before(from) && e.EventTime.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Snapshots(context.Context) ([]fleet.VehicleSnapshot, error) {
	return f.snapshots, nil
}

type fakeWarehouse struct {
	locations []fleet.RawLocationSample
	active    []fleet.RawJobStep
}

func (f *fakeWarehouse) LocationsInRange(_ context.Context, from, to time.Time) ([]fleet.RawLocationSample, error) {
	var out []fleet.RawLocationSample
	for _, l := range f.locations {
		if !l.CapturedAt.Before(from) && l.CapturedAt.Before(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeWarehouse) LatestLocations(context.Context, time.Time) ([]fleet.RawLocationSample, error) {
	return f.locations, nil
}

func (f *fakeWarehouse) JobStepsInRange(context.Context, time.Time, time.Time) ([]fleet.RawJobStep, error) {
	return nil, nil
}

func (f *fakeWarehouse) ActiveJobs(context.Context, time.Time) ([]fleet.RawJobStep, error) {
	return f.active, nil
}

func newTestRouter(store *fakeStore, wh *fakeWarehouse) *gin.Engine {
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClockAt(testNow)
	log := zap.NewNop()
	ids := identity.NewDeriver("fleet-delivery-robots")
	tf := transform.NewTransformer(ids, 10.0, 6, log)
	metrics := observability.NewMetricsForTesting()
	opsStart := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

	tripResolver := freshness.NewResolver(clock, 0, opsStart)
	eventResolver := freshness.NewResolver(clock, 14*24*time.Hour, opsStart)

	vehicleService := vehicle.NewService(store, wh, ids, tf, cache.New(clock), metrics, clock, log, time.Minute, 30*24*time.Hour)
	tripService := trip.NewService(store, tf, tripResolver)
	telemetryService := telemetry.NewService(store, wh, tf, eventResolver)
	eventService := event.NewService(store, tf, eventResolver, log)

	router := gin.New()
	group := router.Group("/v1/provider")
	NewVehicleHandler(vehicleService, 60000).RegisterRoutes(group)
	NewTripHandler(tripService).RegisterRoutes(group)
	NewTelemetryHandler(telemetryService).RegisterRoutes(group)
	NewEventHandler(eventService).RegisterRoutes(group)
	return router
}

func doGet(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func completedAt(hours ...string) map[time.Time]bool {
	m := make(map[time.Time]bool)
	for _, h := range hours {
		b, err := freshness.ParseHour(h)
		if err != nil {
			panic(err)
		}
		m[b.Start] = true
	}
	return m
}

func TestGetTripsReady(t *testing.T) {
	tripStart := time.Date(2025, 9, 8, 23, 10, 0, 0, time.UTC)
	tripEnd := time.Date(2025, 9, 8, 23, 45, 0, 0, time.UTC)
	store := &fakeStore{
		completedHours: completedAt("2025-09-08T23"),
		trips: []fleet.MaterializedTrip{{
			TripID: uuid.New(), RobotID: "4B017", JobID: "job-1", StepID: "s2",
			TripStart: tripStart, TripEnd: tripEnd,
			StartLatitude: 37.77, StartLongitude: -122.41,
			EndLatitude: 37.78, EndLongitude: -122.40,
			HourBucket: time.Date(2025, 9, 8, 23, 0, 0, 0, time.UTC),
		}},
	}
	router := newTestRouter(store, &fakeWarehouse{})

	w, body := doGet(t, router, "/v1/provider/trips?end_time=2025-09-08T23")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, utils.MDSContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "2.0.0", body["version"])

	trips, ok := body["trips"].([]any)
	require.True(t, ok)
	require.Len(t, trips, 1)
	first := trips[0].(map[string]any)
	assert.Equal(t, float64(2100000), first["duration"])
}

func TestGetTripsParamErrors(t *testing.T) {
	router := newTestRouter(&fakeStore{completedHours: map[time.Time]bool{}}, &fakeWarehouse{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{"missing end_time", "/v1/provider/trips", http.StatusBadRequest, "missing_param"},
		{"malformed hour", "/v1/provider/trips?end_time=2025-09-08T23:00", http.StatusBadRequest, "bad_param"},
		{"future hour", "/v1/provider/trips?end_time=2025-09-16T00", http.StatusNotFound, "future_time"},
		{"current hour", "/v1/provider/trips?end_time=2025-09-15T12", http.StatusNotFound, "future_time"},
		{"pending hour", "/v1/provider/trips?end_time=2025-09-15T11", http.StatusAccepted, "data_processing"},
		{"before operations", "/v1/provider/trips?end_time=2021-04-30T23", http.StatusNotFound, "no_operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doGet(t, router, tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotEmpty(t, body["error_description"])
		})
	}
}

func TestGetTripsEmptyHourIsOK(t *testing.T) {
	store := &fakeStore{completedHours: completedAt("2025-09-10T05")}
	router := newTestRouter(store, &fakeWarehouse{})

	w, body := doGet(t, router, "/v1/provider/trips?end_time=2025-09-10T05")
	require.Equal(t, http.StatusOK, w.Code)
	trips, ok := body["trips"].([]any)
	require.True(t, ok)
	assert.Empty(t, trips)
}

func TestGetTelemetry(t *testing.T) {
	tripStart := time.Date(2025, 9, 10, 4, 50, 0, 0, time.UTC)
	tripEnd := time.Date(2025, 9, 10, 5, 20, 0, 0, time.UTC)
	store := &fakeStore{
		completedHours: completedAt("2025-09-10T05"),
		trips: []fleet.MaterializedTrip{{
			TripID: uuid.New(), RobotID: "4B017", JobID: "job-1", StepID: "s2",
			TripStart: tripStart, TripEnd: tripEnd,
			HourBucket: time.Date(2025, 9, 10, 5, 0, 0, 0, time.UTC),
		}},
	}
	wh := &fakeWarehouse{
		locations: []fleet.RawLocationSample{
			{RobotID: "4B017", Latitude: 37.77, Longitude: -122.41, Accuracy: 5, CapturedAt: tripStart.Add(5 * time.Minute)},
			{RobotID: "4B017", Latitude: 37.78, Longitude: -122.40, Accuracy: 25, CapturedAt: tripStart.Add(10 * time.Minute)},
		},
	}
	router := newTestRouter(store, wh)

	w, body := doGet(t, router, "/v1/provider/telemetry?telemetry_time=2025-09-10T05")
	require.Equal(t, http.StatusOK, w.Code)
	points, ok := body["telemetry"].([]any)
	require.True(t, ok)
	// The coarse sample is filtered out by the accuracy gate.
	assert.Len(t, points, 1)
}

func TestGetTelemetryEmptyHour(t *testing.T) {
	store := &fakeStore{completedHours: completedAt("2025-09-10T05")}
	router := newTestRouter(store, &fakeWarehouse{})

	w, body := doGet(t, router, "/v1/provider/telemetry?telemetry_time=2025-09-10T05")
	require.Equal(t, http.StatusOK, w.Code)
	points, ok := body["telemetry"].([]any)
	require.True(t, ok)
	assert.Empty(t, points)
}

func TestGetHistoricalEvents(t *testing.T) {
	hour := time.Date(2025, 9, 10, 5, 0, 0, 0, time.UTC)
	store := &fakeStore{
		completedHours: completedAt("2025-09-10T05"),
		events: []fleet.MaterializedEvent{{
			EventID: uuid.New(), RobotID: "4B017", EventType: "trip_start",
			EventTime: hour.Add(10 * time.Minute), Latitude: 37.77, Longitude: -122.41,
			HourBucket: hour,
		}},
	}
	router := newTestRouter(store, &fakeWarehouse{})

	w, body := doGet(t, router, "/v1/provider/events/historical?event_time=2025-09-10T05")
	require.Equal(t, http.StatusOK, w.Code)
	events, ok := body["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)

	first := events[0].(map[string]any)
	assert.Equal(t, []any{"trip_start"}, first["event_types"])
	assert.Equal(t, "on_trip", first["vehicle_state"])
	assert.Equal(t, float64(hour.Add(time.Hour).UnixMilli()), first["publication_time"])
}

func TestGetRecentEvents(t *testing.T) {
	hour := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		completedHours: completedAt("2025-09-15T10"),
		events: []fleet.MaterializedEvent{{
			EventID: uuid.New(), RobotID: "4B017", EventType: "trip_end",
			EventTime: hour.Add(30 * time.Minute), HourBucket: hour,
		}},
	}
	router := newTestRouter(store, &fakeWarehouse{})

	start := testNow.Add(-24 * time.Hour).UnixMilli()
	end := testNow.Add(-time.Minute).UnixMilli()
	w, body := doGet(t, router, fmt.Sprintf("/v1/provider/events/recent?start_time=%d&end_time=%d", start, end))
	require.Equal(t, http.StatusOK, w.Code)
	events, ok := body["events"].([]any)
	require.True(t, ok)
	assert.Len(t, events, 1)
}

func TestGetRecentEventsRangeErrors(t *testing.T) {
	router := newTestRouter(&fakeStore{completedHours: map[time.Time]bool{}}, &fakeWarehouse{})

	ms := func(t time.Time) int64 { return t.UnixMilli() }
	tests := []struct {
		name       string
		start, end string
		wantStatus int
		wantError  string
	}{
		{"non-numeric start", "abc", fmt.Sprint(ms(testNow)), http.StatusBadRequest, "bad_param"},
		{"missing end", fmt.Sprint(ms(testNow.Add(-time.Hour))), "", http.StatusBadRequest, "bad_param"},
		{"inverted range", fmt.Sprint(ms(testNow.Add(-time.Hour))), fmt.Sprint(ms(testNow.Add(-2 * time.Hour))), http.StatusBadRequest, "invalid_time_range"},
		{"fifteen day span", fmt.Sprint(ms(testNow.Add(-15 * 24 * time.Hour))), fmt.Sprint(ms(testNow.Add(-time.Hour))), http.StatusBadRequest, "invalid_time_range"},
		{"end in future", fmt.Sprint(ms(testNow.Add(-time.Hour))), fmt.Sprint(ms(testNow.Add(time.Hour))), http.StatusBadRequest, "invalid_time_range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := fmt.Sprintf("/v1/provider/events/recent?start_time=%s&end_time=%s", tt.start, tt.end)
			w, body := doGet(t, router, path)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestListVehicles(t *testing.T) {
	store := &fakeStore{
		snapshots: []fleet.VehicleSnapshot{
			{RobotID: "4B017", Latitude: 37.77, Longitude: -122.41, Status: fleet.StatusIdle, Battery: 80, LastUpdated: testNow.Add(-time.Minute)},
			{RobotID: "4C001", Latitude: 37.78, Longitude: -122.40, Status: fleet.StatusOnJob, Battery: 60, LastUpdated: testNow.Add(-2 * time.Minute)},
		},
	}
	router := newTestRouter(store, &fakeWarehouse{})

	w, body := doGet(t, router, "/v1/provider/vehicles")
	require.Equal(t, http.StatusOK, w.Code)

	vehicles, ok := body["vehicles"].([]any)
	require.True(t, ok)
	require.Len(t, vehicles, 2)
	first := vehicles[0].(map[string]any)
	assert.Equal(t, "4B017", first["vehicle_id"])
	attrs := first["vehicle_attributes"].(map[string]any)
	assert.Equal(t, "DR4.1A", attrs["model"])

	assert.Equal(t, float64(testNow.Add(-time.Minute).UnixMilli()), body["last_updated"])
	assert.Equal(t, float64(3600000), body["ttl"])
}

func TestGetVehicle(t *testing.T) {
	store := &fakeStore{
		snapshots: []fleet.VehicleSnapshot{
			{RobotID: "4B017", Status: fleet.StatusIdle, LastUpdated: testNow},
		},
	}
	router := newTestRouter(store, &fakeWarehouse{})

	ids := identity.NewDeriver("fleet-delivery-robots")
	deviceID := ids.DeviceID("4B017")

	w, body := doGet(t, router, "/v1/provider/vehicles/"+deviceID.String())
	require.Equal(t, http.StatusOK, w.Code)
	vehicles := body["vehicles"].([]any)
	require.Len(t, vehicles, 1)
	assert.Equal(t, deviceID.String(), vehicles[0].(map[string]any)["device_id"])

	w, body = doGet(t, router, "/v1/provider/vehicles/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_param", body["error"])

	w, body = doGet(t, router, "/v1/provider/vehicles/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "device_not_found", body["error"])
}

func TestVehicleStatuses(t *testing.T) {
	wh := &fakeWarehouse{
		locations: []fleet.RawLocationSample{
			{RobotID: "4B017", Latitude: 37.77, Longitude: -122.41, Accuracy: 5, Battery: 80, CapturedAt: testNow.Add(-time.Minute)},
		},
		active: []fleet.RawJobStep{{JobID: "job-1", StepID: "s1", RobotID: "4B017"}},
	}
	router := newTestRouter(&fakeStore{}, wh)

	w, body := doGet(t, router, "/v1/provider/vehicles/status")
	require.Equal(t, http.StatusOK, w.Code)

	statuses, ok := body["vehicles_status"].([]any)
	require.True(t, ok)
	require.Len(t, statuses, 1)
	first := statuses[0].(map[string]any)
	assert.Equal(t, "on_trip", first["vehicle_state"])
	assert.Equal(t, float64(80), first["battery_percent"])
	require.NotNil(t, first["current_location"])

	assert.Equal(t, float64(60000), body["ttl"])
	assert.Equal(t, float64(testNow.Add(-time.Minute).UnixMilli()), body["last_updated"])
}

func TestVehicleStatusesIncludesSnapshotOnlyRobots(t *testing.T) {
	wh := &fakeWarehouse{
		locations: []fleet.RawLocationSample{
			{RobotID: "4B017", Latitude: 37.77, Longitude: -122.41, Accuracy: 5, Battery: 80, CapturedAt: testNow.Add(-time.Minute)},
		},
	}
	store := &fakeStore{
		snapshots: []fleet.VehicleSnapshot{
			// Also has a live sample; must not be duplicated.
			{RobotID: "4B017", Status: fleet.StatusIdle, LastUpdated: testNow.Add(-time.Hour)},
			// Silent robot, only the materialized view remains.
			{RobotID: "4C001", Latitude: 37.70, Longitude: -122.45, Status: fleet.StatusOffline, Battery: 10, LastUpdated: testNow.Add(-3 * time.Hour)},
		},
	}
	router := newTestRouter(store, wh)

	w, body := doGet(t, router, "/v1/provider/vehicles/status")
	require.Equal(t, http.StatusOK, w.Code)

	statuses := body["vehicles_status"].([]any)
	require.Len(t, statuses, 2)

	states := make(map[string]string)
	ids := identity.NewDeriver("fleet-delivery-robots")
	for _, s := range statuses {
		m := s.(map[string]any)
		states[m["device_id"].(string)] = m["vehicle_state"].(string)
	}
	assert.Equal(t, "available", states[ids.DeviceID("4B017").String()])
	assert.Equal(t, "non_contactable", states[ids.DeviceID("4C001").String()])
}
