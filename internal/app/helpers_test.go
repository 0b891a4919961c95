package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rolechat/internal/ai"
	"rolechat/internal/model"
	"rolechat/internal/pkg/logger"
	"rolechat/internal/platform/sqlite"
	"rolechat/internal/repository"
	"rolechat/internal/roles"
)

type testEnv struct {
	db            *gorm.DB
	users         *repository.UserRepository
	messages      *repository.ChatMessageRepository
	sessions      *repository.SessionRepository
	registry      *roles.Registry
	auth          *AuthService
	sessionSvc    *SessionService
	conversations *ConversationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "app.db"), logger.Discard())
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

	registry, err := roles.NewRegistry(roles.Defaults())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	log := logger.Discard()
	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		messages: repository.NewChatMessageRepository(db),
		sessions: repository.NewSessionRepository(db),
		registry: registry,
	}
	env.auth = NewAuthService(env.users, bcrypt.MinCost)
	env.sessionSvc = NewSessionService(env.auth, env.sessions, registry, "test-secret", time.Hour, log)
	env.conversations = NewConversationService(env.messages, nil, nil, log)
	return env
}

func (e *testEnv) mustRegister(t *testing.T, email, password string) *model.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type fakeCompleter struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	inputs [][]ai.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, append([]ai.ChatMessage(nil), messages...))
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type memoryHistoryCache struct {
	mu            sync.Mutex
	history       map[uint][]model.ChatMessage
	versions      map[uint]int64
	invalidations int
	invalidateErr error
	sets          int
}

func newMemoryHistoryCache() *memoryHistoryCache {
	return &memoryHistoryCache{
		history:  make(map[uint][]model.ChatMessage),
		versions: make(map[uint]int64),
	}
}

func (c *memoryHistoryCache) GetHistory(_ context.Context, userID uint) ([]model.ChatMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages, ok := c.history[userID]
	return messages, ok, nil
}

func (c *memoryHistoryCache) Version(_ context.Context, userID uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *memoryHistoryCache) SetHistory(_ context.Context, userID uint, version int64, messages []model.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[userID] != version {
		return nil
	}
	c.sets++
	c.history[userID] = messages
	return nil
}

func (c *memoryHistoryCache) Invalidate(_ context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.invalidations++
	c.versions[userID]++
	delete(c.history, userID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []model.TurnEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event model.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}
