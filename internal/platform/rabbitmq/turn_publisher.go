package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"rolechat/internal/model"
)

type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *TurnPublisher) Publish(ctx context.Context, event model.TurnEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal turn event failed: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish turn event failed: %w", err)
	}
	return nil
}
