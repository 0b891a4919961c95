package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"rolechat/internal/model"
	"rolechat/internal/platform/rabbitmq"
	"rolechat/internal/repository"
)

var errBadEvent = errors.New("undecodable turn event")

type HistoryWriter interface {
	Version(ctx context.Context, userID uint) (int64, error)
	SetHistory(ctx context.Context, userID uint, version int64, messages []model.ChatMessage) error
}

// HistoryWarmWorker consumes turn events and refills the history cache so the
// next page load or turn is served from redis.
type HistoryWarmWorker struct {
	conn      *amqp.Connection
	repo      *repository.ChatMessageRepository
	cache     HistoryWriter
	queueName string
	log       logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryWarmWorker(
	conn *amqp.Connection,
	repo *repository.ChatMessageRepository,
	cache HistoryWriter,
	queueName string,
	log logrus.FieldLogger,
) *HistoryWarmWorker {
	return &HistoryWarmWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
		log:       log.WithField("queue", queueName),
	}
}

func (w *HistoryWarmWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	if err := rabbitmq.DeclareQueue(w.conn, w.queueName); err != nil {
		return err
	}
	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.log.WithError(err).Warn("warm history failed")
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("history warm worker started")
	return nil
}

func (w *HistoryWarmWorker) handle(ctx context.Context, body []byte) error {
	var event model.TurnEvent
	if err := json.Unmarshal(body, &event); err != nil || event.UserID == 0 {
		return errBadEvent
	}

	version, err := w.cache.Version(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("read history version for user %d failed: %w", event.UserID, err)
	}
	messages, err := w.repo.ListByUserID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load history for user %d failed: %w", event.UserID, err)
	}
	if err := w.cache.SetHistory(ctx, event.UserID, version, messages); err != nil {
		return fmt.Errorf("write history cache for user %d failed: %w", event.UserID, err)
	}
	return nil
}

func (w *HistoryWarmWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
