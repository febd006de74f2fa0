package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trip is the read-only catalog view the booking core needs: when the bus
// leaves and which stops a passenger may board or alight at. The catalog
// service owns the full document; this is just the slice consulted here.
type Trip struct {
	ID        uuid.UUID
	RouteID   uuid.UUID
	Departure time.Time
	Stops     []RouteStop
}

// RouteStop is one stop on a trip's route. Seq orders stops along the
// route; the first stop is the origin, the last the destination.
type RouteStop struct {
	StopID  uuid.UUID
	Seq     int
	Pickup  bool
	Dropoff bool
}

// Departed reports whether the trip has already left at the given instant.
func (t Trip) Departed(now time.Time) bool {
	return !t.Departure.After(now)
}

// ResolveStop finds a stop usable for boarding (pickup) or alighting
// (dropoff). The origin always admits pickup and the destination always
// admits dropoff regardless of flags.
func (t Trip) ResolveStop(stopID uuid.UUID, pickup bool) (RouteStop, bool) {
	for i, s := range t.Stops {
		if s.StopID != stopID {
			continue
		}
		if pickup && (i == 0 || s.Pickup) {
			return s, true
		}
		if !pickup && (i == len(t.Stops)-1 || s.Dropoff) {
			return s, true
		}
		return RouteStop{}, false
	}
	return RouteStop{}, false
}
