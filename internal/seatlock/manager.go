package seatlock

import (
	"context"
	"time"

	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
)

// Store is the shared TTL key/value layer holding soft seat holds. The
// redis adapter implements it.
type Store interface {
	TryAcquire(ctx context.Context, tripID, seatCode, holderID string, ttl time.Duration) (bool, error)
	Holder(ctx context.Context, tripID, seatCode string) (string, error)
	Clear(ctx context.Context, tripID string, seatCodes ...string) error
	Snapshot(ctx context.Context, tripID string) (map[string]string, error)
}

// Broadcaster fans seat status changes out to the realtime sink.
type Broadcaster interface {
	PublishSeatStatus(ctx context.Context, tripID string, ev domain.SeatStatusEvent) error
}

// Manager grants and clears short-lived exclusive seat holds. Ownership is
// tracked as an explicit value in the store's holder map, not as call-stack
// state: release is routinely invoked from a different request context than
// the one that acquired the hold.
type Manager struct {
	store     Store
	broadcast Broadcaster
	logger    observability.Logger
	ttl       time.Duration
}

func NewManager(store Store, broadcast Broadcaster, logger observability.Logger, ttl time.Duration) *Manager {
	return &Manager{store: store, broadcast: broadcast, logger: logger, ttl: ttl}
}

// Acquire tries to take an exclusive hold on (trip, seat) for the holder.
// Non-blocking: a live hold by anyone, or any store failure, yields false.
// The seat stays unavailable to the caller rather than risking a double
// grant; retry policy belongs to the caller.
func (m *Manager) Acquire(ctx context.Context, tripID, seatCode, holderID string) bool {
	ok, err := m.store.TryAcquire(ctx, tripID, seatCode, holderID, m.ttl)
	if err != nil {
		m.logger.WithError(err).WithField("trip_id", tripID).Warn("seatlock: acquire failed")
		return false
	}
	if !ok {
		observability.HoldConflicts.Inc()
		return false
	}
	observability.HoldsAcquired.Inc()
	m.emit(ctx, tripID, domain.SeatStatusEvent{SeatCode: seatCode, Status: domain.SeatLocked, HolderID: holderID})
	return true
}

// Release clears the hold on (trip, seat) only when holderID matches the
// holder map's current owner; anyone else's release is a no-op.
func (m *Manager) Release(ctx context.Context, tripID, seatCode, holderID string) {
	current, err := m.store.Holder(ctx, tripID, seatCode)
	if err != nil {
		m.logger.WithError(err).WithField("trip_id", tripID).Warn("seatlock: holder lookup failed")
		return
	}
	if current == "" || current != holderID {
		return
	}
	if err := m.store.Clear(ctx, tripID, seatCode); err != nil {
		m.logger.WithError(err).WithField("trip_id", tripID).Warn("seatlock: release failed")
		return
	}
	m.emit(ctx, tripID, domain.SeatStatusEvent{SeatCode: seatCode, Status: domain.SeatAvailable})
}

// ReleaseForBooking force-clears holds for seats going back to the pool
// after a cancellation or payment failure. No holder check: legitimacy was
// already decided against the ledger.
func (m *Manager) ReleaseForBooking(ctx context.Context, tripID string, seatCodes []string) {
	m.clearAll(ctx, tripID, seatCodes, domain.SeatAvailable)
}

// CommitForBooking force-clears holds for seats that just became durably
// booked. Same store action as a release; only the broadcast differs.
func (m *Manager) CommitForBooking(ctx context.Context, tripID string, seatCodes []string) {
	m.clearAll(ctx, tripID, seatCodes, domain.SeatBooked)
}

func (m *Manager) clearAll(ctx context.Context, tripID string, seatCodes []string, status domain.SeatStatus) {
	if len(seatCodes) == 0 {
		return
	}
	if err := m.store.Clear(ctx, tripID, seatCodes...); err != nil {
		m.logger.WithError(err).WithField("trip_id", tripID).Warn("seatlock: bulk clear failed")
		return
	}
	for _, code := range seatCodes {
		m.emit(ctx, tripID, domain.SeatStatusEvent{SeatCode: code, Status: status})
	}
}

// HeldSeats snapshots seat code → holder for the trip's live holds.
func (m *Manager) HeldSeats(ctx context.Context, tripID string) (map[string]string, error) {
	return m.store.Snapshot(ctx, tripID)
}

func (m *Manager) emit(ctx context.Context, tripID string, ev domain.SeatStatusEvent) {
	if m.broadcast == nil {
		return
	}
	if err := m.broadcast.PublishSeatStatus(ctx, tripID, ev); err != nil {
		m.logger.WithError(err).WithField("trip_id", tripID).Warn("seatlock: broadcast failed")
	}
}
