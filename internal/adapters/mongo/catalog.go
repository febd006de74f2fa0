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

// CatalogRepository reads the trip/route catalog maintained by the fleet
// management service. The booking core never writes here.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("trips"),
		logger: logger,
	}
}

type TripDoc struct {
	ID        uuid.UUID `bson:"_id"`
	RouteID   uuid.UUID `bson:"route_id"`
	BusPlate  string    `bson:"bus_plate"`
	Departure time.Time `bson:"departure"`
	Stops     []StopDoc `bson:"stops"`
	Seats     []SeatDoc `bson:"seats"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type StopDoc struct {
	StopID  uuid.UUID `bson:"stop_id"`
	Name    string    `bson:"name"`
	Seq     int       `bson:"seq"`
	Pickup  bool      `bson:"pickup"`
	Dropoff bool      `bson:"dropoff"`
}

type SeatDoc struct {
	Code  string  `bson:"code"`
	Deck  int     `bson:"deck"`
	Price float64 `bson:"price"`
}

// TripByID loads the catalog slice the booking core consults: departure
// time and the ordered stop list with boarding flags.
func (c *CatalogRepository) TripByID(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	var doc TripDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.WithError(err).Error("catalog: trip lookup failed")
		return nil, err
	}

	trip := domain.Trip{
		ID:        doc.ID,
		RouteID:   doc.RouteID,
		Departure: doc.Departure,
	}
	for _, s := range doc.Stops {
		trip.Stops = append(trip.Stops, domain.RouteStop{
			StopID:  s.StopID,
			Seq:     s.Seq,
			Pickup:  s.Pickup,
			Dropoff: s.Dropoff,
		})
	}
	return &trip, nil
}

// InsertTrip seeds a trip document. Only tests and fixtures use this; the
// catalog is otherwise owned externally.
func (c *CatalogRepository) InsertTrip(ctx context.Context, doc TripDoc) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}
