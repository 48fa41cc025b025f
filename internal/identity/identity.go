// Package identity derives the stable MDS identifiers exposed to data
// consumers from internal fleet identifiers.
package identity

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind names the entity class an identifier belongs to. The kind is part of
// the hashed name, so identifiers of different kinds never collide even when
// built from the same natural key.
type Kind string

const (
	KindDevice    Kind = "device"
	KindTrip      Kind = "trip"
	KindEvent     Kind = "event"
	KindTelemetry Kind = "telemetry"
	KindJourney   Kind = "journey"
)

// Deriver maps (provider, kind, natural key) to RFC 4122 version-5 UUIDs.
// The mapping is pure and defined entirely by the concatenation rule in
// Derive, so the same inputs yield byte-identical UUIDs across restarts and
// across independent implementations.
type Deriver struct {
	providerID string
}

func NewDeriver(providerID string) *Deriver {
	return &Deriver{providerID: providerID}
}

// Derive hashes "<provider>.<kind>.<part1>.<part2>..." into the DNS
// namespace. uuid.NewSHA1 over NameSpaceDNS is the standard v5 construction.
func (d *Deriver) Derive(kind Kind, parts ...string) uuid.UUID {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, d.providerID, string(kind))
	segments = append(segments, parts...)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(strings.Join(segments, ".")))
}

// ProviderID is the UUID form of the provider identifier itself.
func (d *Deriver) ProviderID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(d.providerID))
}

func (d *Deriver) DeviceID(robotID string) uuid.UUID {
	return d.Derive(KindDevice, robotID)
}

func (d *Deriver) TripID(jobID, stepID string) uuid.UUID {
	return d.Derive(KindTrip, jobID, stepID)
}

func (d *Deriver) EventID(robotID string, eventTimeMS int64, eventType string) uuid.UUID {
	return d.Derive(KindEvent, robotID, strconv.FormatInt(eventTimeMS, 10), eventType)
}

func (d *Deriver) TelemetryID(robotID string, timestampMS int64) uuid.UUID {
	return d.Derive(KindTelemetry, robotID, strconv.FormatInt(timestampMS, 10))
}

func (d *Deriver) JourneyID(jobID string) uuid.UUID {
	return d.Derive(KindJourney, jobID)
}
