// Package materializer computes the hour-scoped aggregates served by the
// provider API: completed trips, derived state-change events, and per-robot
// snapshots. Each hour is written all-or-nothing so readers never observe a
// partially materialized bucket.
package materializer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/domain/fleet"
	"fleet-mds-provider/internal/domain/mds"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/internal/observability"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Options carries the tunables of a materialization run.
type Options struct {
	// SnapshotLookback bounds how far back location samples are loaded when
	// rebuilding the per-robot snapshots.
	SnapshotLookback time.Duration
	// CommsLossGap is the silence between consecutive samples after which a
	// robot is declared out of contact.
	CommsLossGap time.Duration
	// MinLocationAccuracy gates which samples may seed a snapshot, meters.
	MinLocationAccuracy float64
}

// Result summarizes one completed run.
type Result struct {
	Hour             freshness.HourBucket
	TripsWritten     int
	EventsWritten    int
	SnapshotsWritten int
	Warnings         []string
	Attempts         int
	Duration         time.Duration
}

// Materializer rebuilds one hour bucket from the raw warehouse. Runs for the
// same hour are serialized in-process; runs for distinct hours proceed
// concurrently.
type Materializer struct {
	warehouse fleet.Warehouse
	store     fleet.MaterializedStore
	ids       *identity.Deriver
	clock     clockwork.Clock
	log       *zap.Logger
	metrics   *observability.Metrics
	opts      Options

	mu        sync.Mutex
	hourLocks map[time.Time]*hourLock
}

// hourLock serializes runs for one bucket. refs counts holders and waiters so
// the entry can be dropped once the last of them is done; without it the
// long-running listener would accumulate one mutex per hour ever touched.
type hourLock struct {
	mu   sync.Mutex
	refs int
}

func New(warehouse fleet.Warehouse, store fleet.MaterializedStore, ids *identity.Deriver, clock clockwork.Clock, log *zap.Logger, metrics *observability.Metrics, opts Options) *Materializer {
	return &Materializer{
		warehouse: warehouse,
		store:     store,
		ids:       ids,
		clock:     clock,
		log:       log,
		metrics:   metrics,
		opts:      opts,
		hourLocks: make(map[time.Time]*hourLock),
	}
}

func (m *Materializer) acquireHour(hour time.Time) *hourLock {
	m.mu.Lock()
	l, ok := m.hourLocks[hour]
	if !ok {
		l = &hourLock{}
		m.hourLocks[hour] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return l
}

func (m *Materializer) releaseHour(hour time.Time, l *hourLock) {
	l.mu.Unlock()

	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.hourLocks, hour)
	}
	m.mu.Unlock()
}

// MaterializeHour rebuilds the given bucket, retrying transient failures with
// exponential backoff. Re-running a closed hour is idempotent: identical raw
// input yields byte-identical aggregates.
func (m *Materializer) MaterializeHour(ctx context.Context, hour freshness.HourBucket) (Result, error) {
	lock := m.acquireHour(hour.Start)
	defer m.releaseHour(hour.Start, lock)

	m.metrics.MaterializationRunning.Inc()
	defer m.metrics.MaterializationRunning.Dec()

	started := m.clock.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := m.materializeOnce(ctx, hour)
		if err == nil {
			res.Attempts = attempt
			res.Duration = m.clock.Now().Sub(started)
			m.metrics.MaterializationRuns.WithLabelValues("success").Inc()
			m.metrics.MaterializationDuration.Observe(res.Duration.Seconds())
			m.metrics.RowsWritten.WithLabelValues("trips").Add(float64(res.TripsWritten))
			m.metrics.RowsWritten.WithLabelValues("events").Add(float64(res.EventsWritten))
			m.metrics.RowsWritten.WithLabelValues("snapshots").Add(float64(res.SnapshotsWritten))
			m.log.Info("hour materialized",
				zap.String("hour", hour.String()),
				zap.Int("trips", res.TripsWritten),
				zap.Int("events", res.EventsWritten),
				zap.Int("snapshots", res.SnapshotsWritten),
				zap.Int("attempt", attempt),
				zap.Duration("duration", res.Duration))
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		m.log.Warn("materialization attempt failed",
			zap.String("hour", hour.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < maxAttempts {
			if err := m.sleep(ctx, backoffFor(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	m.metrics.MaterializationRuns.WithLabelValues("failure").Inc()
	return Result{Hour: hour}, fmt.Errorf("materialize hour %s: %w", hour, lastErr)
}

func backoffFor(attempt int) time.Duration {
	d := initialBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (m *Materializer) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}

func (m *Materializer) materializeOnce(ctx context.Context, hour freshness.HourBucket) (Result, error) {
	res := Result{Hour: hour}

	locations, err := m.warehouse.LocationsInRange(ctx, hour.End().Add(-m.opts.SnapshotLookback), hour.End())
	if err != nil {
		return res, fmt.Errorf("load locations: %w", err)
	}
	steps, err := m.warehouse.JobStepsInRange(ctx, hour.Start.Add(-24*time.Hour), hour.End())
	if err != nil {
		return res, fmt.Errorf("load job steps: %w", err)
	}
	active, err := m.warehouse.ActiveJobs(ctx, hour.End())
	if err != nil {
		return res, fmt.Errorf("load active jobs: %w", err)
	}

	trips, tripWarnings := m.deriveTrips(hour, steps)
	events := m.deriveEvents(hour, steps, locations)
	snapshots := m.buildSnapshots(hour, locations, active)
	res.Warnings = tripWarnings

	if err := m.store.ReplaceHour(ctx, hour.Start, trips, events, snapshots); err != nil {
		return res, fmt.Errorf("replace hour: %w", err)
	}

	res.TripsWritten = len(trips)
	res.EventsWritten = len(events)
	res.SnapshotsWritten = len(snapshots)
	return res, nil
}

// deriveTrips pairs job start steps with their end steps and keeps the trips
// whose end falls in this bucket. A trip belongs to exactly the bucket of its
// end instant.
func (m *Materializer) deriveTrips(hour freshness.HourBucket, steps []fleet.RawJobStep) ([]fleet.MaterializedTrip, []string) {
	type jobLeg struct {
		start *fleet.RawJobStep
		ends  []fleet.RawJobStep
	}
	jobs := make(map[string]*jobLeg)
	order := make([]string, 0)
	for i := range steps {
		s := steps[i]
		leg, ok := jobs[s.JobID]
		if !ok {
			leg = &jobLeg{}
			jobs[s.JobID] = leg
			order = append(order, s.JobID)
		}
		switch {
		case s.StepType.IsStart():
			if leg.start == nil || s.StepStart.Before(leg.start.StepStart) {
				leg.start = &steps[i]
			}
		case s.StepType.IsEnd():
			leg.ends = append(leg.ends, s)
		}
	}

	var trips []fleet.MaterializedTrip
	var warnings []string
	for _, jobID := range order {
		leg := jobs[jobID]
		if leg.start == nil {
			continue
		}
		for _, end := range leg.ends {
			if !hour.Contains(end.StepEnd) {
				continue
			}
			tripStart := leg.start.StepStart
			tripEnd := end.StepEnd
			if !tripStart.Before(tripEnd) {
				warnings = append(warnings, fmt.Sprintf("job %s step %s: start %s not before end %s", jobID, end.StepID, tripStart, tripEnd))
				m.metrics.DroppedRecords.WithLabelValues("trip").Inc()
				continue
			}
			trips = append(trips, fleet.MaterializedTrip{
				TripID:         m.ids.TripID(jobID, end.StepID),
				RobotID:        end.RobotID,
				JobID:          jobID,
				StepID:         end.StepID,
				TripStart:      tripStart,
				TripEnd:        tripEnd,
				StartLatitude:  leg.start.Latitude,
				StartLongitude: leg.start.Longitude,
				EndLatitude:    end.Latitude,
				EndLongitude:   end.Longitude,
				Status:         "completed",
				HourBucket:     hour.Start,
			})
		}
	}
	sort.Slice(trips, func(i, j int) bool {
		if !trips[i].TripEnd.Equal(trips[j].TripEnd) {
			return trips[i].TripEnd.Before(trips[j].TripEnd)
		}
		return trips[i].TripID.String() < trips[j].TripID.String()
	})
	return trips, warnings
}

// deriveEvents produces the state changes attributable to this hour:
// trip_start when a job's start step begins in the hour, trip_end when an end
// step finishes in it, and comms_lost/comms_restored from sample gaps longer
// than the configured threshold.
func (m *Materializer) deriveEvents(hour freshness.HourBucket, steps []fleet.RawJobStep, locations []fleet.RawLocationSample) []fleet.MaterializedEvent {
	var events []fleet.MaterializedEvent

	add := func(robotID string, eventType mds.EventType, at time.Time, lat, lng float64) {
		if !hour.Contains(at) {
			return
		}
		ts := at.UnixMilli()
		events = append(events, fleet.MaterializedEvent{
			EventID:    m.ids.EventID(robotID, ts, string(eventType)),
			RobotID:    robotID,
			EventType:  string(eventType),
			EventTime:  at,
			Latitude:   lat,
			Longitude:  lng,
			HourBucket: hour.Start,
		})
	}

	for _, s := range steps {
		if s.StepType.IsStart() {
			add(s.RobotID, mds.EventTripStart, s.StepStart, s.Latitude, s.Longitude)
		}
		if s.StepType.IsEnd() {
			add(s.RobotID, mds.EventTripEnd, s.StepEnd, s.Latitude, s.Longitude)
		}
	}

	// Comms events come from silences in the per-robot sample streams.
	// comms_lost fires when the silence crosses the threshold; comms_restored
	// fires at the first sample after it.
	byRobot := make(map[string][]fleet.RawLocationSample)
	for _, l := range locations {
		byRobot[l.RobotID] = append(byRobot[l.RobotID], l)
	}
	for robotID, samples := range byRobot {
		sort.Slice(samples, func(i, j int) bool { return samples[i].CapturedAt.Before(samples[j].CapturedAt) })
		for i := 1; i < len(samples); i++ {
			prev, cur := samples[i-1], samples[i]
			if cur.CapturedAt.Sub(prev.CapturedAt) > m.opts.CommsLossGap {
				add(robotID, mds.EventCommsLost, prev.CapturedAt.Add(m.opts.CommsLossGap), prev.Latitude, prev.Longitude)
				add(robotID, mds.EventCommsRestored, cur.CapturedAt, cur.Latitude, cur.Longitude)
			}
		}
		// A trailing silence that crosses the threshold inside this hour is a
		// loss with no restoration yet.
		last := samples[len(samples)-1]
		if hour.End().Sub(last.CapturedAt) > m.opts.CommsLossGap {
			add(robotID, mds.EventCommsLost, last.CapturedAt.Add(m.opts.CommsLossGap), last.Latitude, last.Longitude)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].EventTime.Equal(events[j].EventTime) {
			return events[i].EventTime.Before(events[j].EventTime)
		}
		if events[i].RobotID != events[j].RobotID {
			return events[i].RobotID < events[j].RobotID
		}
		return events[i].EventType < events[j].EventType
	})
	return events
}

// buildSnapshots reduces the sample window to the newest accurate fix per
// robot and derives its status from job activity and sample recency.
func (m *Materializer) buildSnapshots(hour freshness.HourBucket, locations []fleet.RawLocationSample, active []fleet.RawJobStep) []fleet.VehicleSnapshot {
	activeRobots := make(map[string]bool, len(active))
	for _, s := range active {
		activeRobots[s.RobotID] = true
	}

	newest := make(map[string]fleet.RawLocationSample)
	for _, l := range locations {
		if l.Accuracy > m.opts.MinLocationAccuracy {
			m.metrics.DroppedRecords.WithLabelValues("location").Inc()
			continue
		}
		if cur, ok := newest[l.RobotID]; !ok || l.CapturedAt.After(cur.CapturedAt) {
			newest[l.RobotID] = l
		}
	}

	snapshots := make([]fleet.VehicleSnapshot, 0, len(newest))
	for robotID, l := range newest {
		status := fleet.StatusIdle
		switch {
		case activeRobots[robotID]:
			status = fleet.StatusOnJob
		case hour.End().Sub(l.CapturedAt) > m.opts.CommsLossGap:
			status = fleet.StatusOffline
		}
		snapshots = append(snapshots, fleet.VehicleSnapshot{
			RobotID:     robotID,
			Latitude:    l.Latitude,
			Longitude:   l.Longitude,
			Accuracy:    l.Accuracy,
			Status:      status,
			Battery:     l.Battery,
			LastUpdated: l.CapturedAt,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].RobotID < snapshots[j].RobotID })
	return snapshots
}
