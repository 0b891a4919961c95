package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func New(ctx context.Context, url string) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	type result struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := amqp.Dial(url)
		done <- result{conn: conn, err: err}
	}()

	select {
	case <-dialCtx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial rabbitmq timeout: %w", dialCtx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("dial rabbitmq failed: %w", r.err)
		}
		if err := Ping(r.conn); err != nil {
			_ = r.conn.Close()
			return nil, err
		}
		return r.conn, nil
	}
}

// Ping verifies the connection is open and can still allocate a channel.
func Ping(conn *amqp.Connection) error {
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	return ch.Close()
}

func declareQueue(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", queueName, err)
	}
	return nil
}

// DeclareQueue declares the durable queue used for turn events.
func DeclareQueue(conn *amqp.Connection, queueName string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()
	return declareQueue(ch, queueName)
}
