package mds

// VehicleState is the fixed MDS vocabulary for delivery robots.
type VehicleState string

const (
	StateRemoved        VehicleState = "removed"
	StateAvailable      VehicleState = "available"
	StateNonOperational VehicleState = "non_operational"
	StateReserved       VehicleState = "reserved"
	StateOnTrip         VehicleState = "on_trip"
	StateStopped        VehicleState = "stopped"
	StateNonContactable VehicleState = "non_contactable"
	StateMissing        VehicleState = "missing"
	StateElsewhere      VehicleState = "elsewhere"
)

// EventType is the fixed MDS event vocabulary this provider emits.
type EventType string

const (
	EventCommsLost             EventType = "comms_lost"
	EventCommsRestored         EventType = "comms_restored"
	EventDecommissioned        EventType = "decommissioned"
	EventLocated               EventType = "located"
	EventNotLocated            EventType = "not_located"
	EventMaintenance           EventType = "maintenance"
	EventReservationStart      EventType = "reservation_start"
	EventServiceEnd            EventType = "service_end"
	EventServiceStart          EventType = "service_start"
	EventTripEnd               EventType = "trip_end"
	EventTripLeaveJurisdiction EventType = "trip_leave_jurisdiction"
	EventTripStart             EventType = "trip_start"
	EventTripPause             EventType = "trip_pause"
)

const (
	VehicleTypeRobot   = "robot"
	PropulsionElectric = "electric"
	TripTypeDelivery   = "delivery"
)
