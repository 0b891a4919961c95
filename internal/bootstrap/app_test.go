package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"

	"rolechat/internal/ai"
	"rolechat/internal/config"
	"rolechat/internal/pkg/logger"
	"rolechat/internal/platform/sqlite"
	"rolechat/internal/repository"
)

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, []ai.ChatMessage) (string, error) {
	return "ok", nil
}

func TestAssembleUsesConfiguredRoles(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "boot.db"), logger.Discard())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Auth: config.AuthConfig{SecretKey: "s", SessionTTLMinute: 60, BcryptCost: 4},
		Roles: map[string]config.RoleConfig{
			"default": {Prompt: "p", Label: "Default"},
			"pirate":  {Prompt: "arr", Label: "Pirate"},
		},
	}
	a, err := Assemble(cfg, db, nil, nil, stubCompleter{}, logger.Discard())
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	defer a.Close()

	if !a.Roles.Has("pirate") || a.Roles.Has("guru") {
		t.Fatalf("configured roles must replace defaults: %+v", a.Roles.List())
	}
	if a.HistoryWorker != nil {
		t.Fatalf("worker must not be built without rabbitmq")
	}
}

func TestAssembleRejectsRedisSessionsWithoutClient(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "boot.db"), logger.Discard())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{Auth: config.AuthConfig{SecretKey: "s", SessionStoreRedis: true}}
	if _, err := Assemble(cfg, db, nil, nil, stubCompleter{}, logger.Discard()); err == nil {
		t.Fatalf("expected error without redis client")
	}
}

func TestBuildRegistryDefaults(t *testing.T) {
	registry, err := buildRegistry(nil)
	if err != nil {
		t.Fatalf("buildRegistry error: %v", err)
	}
	for _, key := range []string{"default", "guru", "dokter", "teman", "ahli_it"} {
		if !registry.Has(key) {
			t.Fatalf("missing default role %s", key)
		}
	}
}

func TestCloseOpenedReleasesConnections(t *testing.T) {
	db, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "boot.db"), logger.Discard())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	redisCli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	closeOpened(db, redisCli, nil)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	if err := sqlDB.Ping(); err == nil {
		t.Fatalf("database must be closed")
	}
	if err := redisCli.Ping(context.Background()).Err(); !errors.Is(err, redis.ErrClosed) {
		t.Fatalf("redis client must be closed, got %v", err)
	}
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("APP_SECRET_KEY", "s")
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("RABBITMQ_ENABLED", "false")
	t.Setenv("SESSION_STORE_REDIS", "false")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "boot.db"))
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")

	if _, err := New(context.Background(), logger.Discard()); err == nil {
		t.Fatalf("expected startup to fail without redis")
	}
}
