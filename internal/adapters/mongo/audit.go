package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends booking lifecycle entries. Failures are logged and
// swallowed; auditing never blocks a state transition.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID uuid.UUID `bson:"booking_id"`
	TripID    uuid.UUID `bson:"trip_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) BookingEvent(ctx context.Context, action string, b domain.Booking) {
	entry := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		BookingID: b.ID,
		TripID:    b.TripID,
		Timestamp: time.Now(),
		Data: bson.M{
			"code":   b.Code,
			"status": string(b.Status),
			"seats":  b.SeatCodes(),
			"total":  b.TotalPrice,
		},
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("booking_id", b.ID).Error("audit: insert failed")
	}
}
