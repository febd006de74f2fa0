package booking

import "github.com/robertarktes/bus-reservations/internal/domain"

// conflictAction is the outcome of weighing a new reservation request
// against one existing booking that owns some of the requested seats.
type conflictAction int

const (
	// actHardConflict: the seats belong to someone else (or to a booking
	// that can no longer be touched); the whole request is rejected.
	actHardConflict conflictAction = iota
	// actUpdateInPlace: the requester re-submitted the exact seat set of
	// their own PENDING booking; overwrite its details and return it.
	actUpdateInPlace
	// actSupersede: the requester changed seat selection; their old
	// PENDING booking is cancelled and a fresh one created.
	actSupersede
)

// resolveConflict is the single decision point for the self-healing
// policy. A booking counts as the requester's own only when both owner ids
// are non-empty and equal; anonymous requests never self-match.
func resolveConflict(existing domain.Booking, ownerID string, seats []domain.SeatSelection) conflictAction {
	if existing.Status != domain.BookingPending {
		return actHardConflict
	}
	if ownerID == "" || existing.OwnerID != ownerID {
		return actHardConflict
	}
	if existing.SameSeatSet(seats) {
		return actUpdateInPlace
	}
	return actSupersede
}

// offendingSeat names one requested seat held by the conflicting booking,
// for the error message.
func offendingSeat(existing domain.Booking, seats []domain.SeatSelection) string {
	requested := make(map[string]bool, len(seats))
	for _, s := range seats {
		requested[s.SeatCode] = true
	}
	for _, t := range existing.Tickets {
		if requested[t.SeatCode] {
			return t.SeatCode
		}
	}
	return ""
}
