package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"rolechat/internal/model"
	"rolechat/internal/pkg/logger"
	"rolechat/internal/platform/rabbitmq"
	"rolechat/internal/platform/sqlite"
	"rolechat/internal/repository"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes map[uint][]model.ChatMessage
	done   chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{writes: make(map[uint][]model.ChatMessage), done: make(chan struct{}, 8)}
}

func (r *recordingWriter) Version(_ context.Context, _ uint) (int64, error) {
	return 0, nil
}

func (r *recordingWriter) SetHistory(_ context.Context, userID uint, _ int64, messages []model.ChatMessage) error {
	r.mu.Lock()
	r.writes[userID] = messages
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func seedHistory(t *testing.T) (*repository.ChatMessageRepository, *model.User) {
	t.Helper()
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "worker.db"), logger.Discard())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ctx := context.Background()
	user := &model.User{Email: "w@x.com", PasswordHash: "hash"}
	if err := repository.NewUserRepository(db).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	repo := repository.NewChatMessageRepository(db)
	if err := repo.Create(ctx, &model.ChatMessage{UserID: user.ID, UserText: "hi", BotReply: "hello", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return repo, user
}

func TestHandleWarmsCacheFromDatabase(t *testing.T) {
	repo, user := seedHistory(t)
	writer := newRecordingWriter()
	w := NewHistoryWarmWorker(nil, repo, writer, "test", logger.Discard())

	if err := w.handle(context.Background(), []byte(`{"user_id":`+itoa(user.ID)+`,"message_id":1}`)); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	got := writer.writes[user.ID]
	if len(got) != 1 || got[0].UserText != "hi" {
		t.Fatalf("unexpected cached history: %+v", got)
	}
}

func TestHandleRejectsBadPayload(t *testing.T) {
	repo, _ := seedHistory(t)
	w := NewHistoryWarmWorker(nil, repo, newRecordingWriter(), "test", logger.Discard())

	for _, body := range []string{"not json", `{"message_id":3}`} {
		if err := w.handle(context.Background(), []byte(body)); !errors.Is(err, errBadEvent) {
			t.Fatalf("body %q: expected errBadEvent, got %v", body, err)
		}
	}
}

func TestWorkerConsumesPublishedEvents(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("set TEST_RABBITMQ_URL to run rabbitmq-backed worker tests")
	}
	repo, user := seedHistory(t)
	ctx := context.Background()

	conn, err := rabbitmq.New(ctx, url)
	if err != nil {
		t.Fatalf("rabbitmq: %v", err)
	}
	defer conn.Close()

	queue := "rolechat.test." + itoa(uint(time.Now().UnixNano()%1_000_000))
	writer := newRecordingWriter()
	w := NewHistoryWarmWorker(conn, repo, writer, queue, logger.Discard())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer w.Close()

	publisher := rabbitmq.NewTurnPublisher(conn, queue)
	if err := publisher.Publish(ctx, model.TurnEvent{UserID: user.ID, MessageID: 1, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case <-writer.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for worker")
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.writes[user.ID]) != 1 {
		t.Fatalf("expected warmed history for user %d", user.ID)
	}
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
