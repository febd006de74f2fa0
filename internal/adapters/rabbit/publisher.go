package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/bus-reservations/internal/domain"
)

const exchange = "busres.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// PublishSeatStatus broadcasts a seat state change on the trip's topic.
// At-most-once; callers treat failures as a logged UI hint loss.
func (p *Publisher) PublishSeatStatus(ctx context.Context, tripID string, ev domain.SeatStatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, fmt.Sprintf("trip.%s.seats", tripID), amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	})
}
