package freshness

import (
	"fmt"
	"time"
)

// HourLayout is the literal hour parameter format of the MDS provider
// endpoints, always interpreted as UTC.
const HourLayout = "2006-01-02T15"

// HourBucket is a closed-open one-hour interval [Start, Start+1h), the unit
// of materialization and of trip/event/telemetry querying. It is identified
// by its start instant.
type HourBucket struct {
	Start time.Time
}

func (b HourBucket) End() time.Time {
	return b.Start.Add(time.Hour)
}

// Contains reports whether t falls inside the bucket.
func (b HourBucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End())
}

func (b HourBucket) String() string {
	return b.Start.UTC().Format(HourLayout)
}

// BucketOf floors t to its containing hour bucket.
func BucketOf(t time.Time) HourBucket {
	return HourBucket{Start: t.UTC().Truncate(time.Hour)}
}

// ParseHour parses an hour parameter in YYYY-MM-DDTHH form as UTC.
func ParseHour(s string) (HourBucket, error) {
	t, err := time.ParseInLocation(HourLayout, s, time.UTC)
	if err != nil {
		return HourBucket{}, fmt.Errorf("expected %s format: %w", "YYYY-MM-DDTHH", err)
	}
	return HourBucket{Start: t}, nil
}
