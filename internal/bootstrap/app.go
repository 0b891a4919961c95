package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rolechat/internal/ai"
	"rolechat/internal/app"
	"rolechat/internal/cache"
	"rolechat/internal/config"
	mysqlClient "rolechat/internal/platform/mysql"
	rabbitmqClient "rolechat/internal/platform/rabbitmq"
	redisClient "rolechat/internal/platform/redis"
	sqliteClient "rolechat/internal/platform/sqlite"
	"rolechat/internal/repository"
	"rolechat/internal/roles"
	"rolechat/internal/worker"
)

type App struct {
	Config *config.Config
	Log    logrus.FieldLogger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Roles         *roles.Registry
	Auth          *app.AuthService
	Sessions      *app.SessionService
	Conversations *app.ConversationService
	Chat          *app.ChatService
	HistoryWorker *worker.HistoryWarmWorker

	StartedAt time.Time
}

// New opens every configured connection and assembles the services. On error
// whatever was already opened is closed again.
func New(ctx context.Context, log logrus.FieldLogger) (_ *App, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	var (
		db       *gorm.DB
		redisCli *redis.Client
		mqConn   *amqp.Connection
	)
	defer func() {
		if err != nil {
			closeOpened(db, redisCli, mqConn)
		}
	}()

	db, err = openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err = repository.AutoMigrate(db); err != nil {
		return nil, err
	}
	purged, purgeErr := repository.NewSessionRepository(db).DeleteExpired(ctx, time.Now())
	if purgeErr != nil {
		log.WithError(purgeErr).Warn("purge expired sessions failed")
	} else if purged > 0 {
		log.WithField("count", purged).Info("purged expired sessions")
	}

	if cfg.Redis.Enabled {
		redisCli, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
	}

	if cfg.RabbitMQ.Enabled {
		mqConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
	}

	gateway := ai.NewGateway(ai.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Timeout:      time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryBackoff: time.Duration(cfg.LLM.RetryBackoffMS) * time.Millisecond,
	}, log.WithField("component", "gateway"))

	a, err := Assemble(cfg, db, redisCli, mqConn, gateway, log)
	if err != nil {
		return nil, err
	}

	if a.HistoryWorker != nil {
		if err = a.HistoryWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start history worker failed: %w", err)
		}
	}
	return a, nil
}

// Assemble wires the services on top of already opened connections. redisCli
// and mqConn may be nil when those integrations are disabled.
func Assemble(
	cfg *config.Config,
	db *gorm.DB,
	redisCli *redis.Client,
	mqConn *amqp.Connection,
	completer ai.Completer,
	log logrus.FieldLogger,
) (*App, error) {
	registry, err := buildRegistry(cfg.Roles)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewChatMessageRepository(db)

	var sessionStore app.SessionStore = repository.NewSessionRepository(db)
	if cfg.Auth.SessionStoreRedis {
		if redisCli == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		sessionStore = cache.NewSessionStore(redisCli)
	}

	var historyCache app.HistoryCache
	var redisHistory *cache.HistoryCache
	if redisCli != nil {
		redisHistory = cache.NewHistoryCache(redisCli, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second)
		historyCache = redisHistory
	}

	var publisher app.TurnPublisher
	var historyWorker *worker.HistoryWarmWorker
	if mqConn != nil {
		if redisHistory == nil {
			log.Warn("rabbitmq enabled without redis, turn events are not published")
		} else {
			publisher = rabbitmqClient.NewTurnPublisher(mqConn, cfg.RabbitMQ.TurnQueue)
			historyWorker = worker.NewHistoryWarmWorker(mqConn, messageRepo, redisHistory, cfg.RabbitMQ.TurnQueue, log)
		}
	}

	authService := app.NewAuthService(userRepo, cfg.Auth.BcryptCost)
	sessionService := app.NewSessionService(
		authService,
		sessionStore,
		registry,
		cfg.Auth.SecretKey,
		time.Duration(cfg.Auth.SessionTTLMinute)*time.Minute,
		log,
	)
	conversations := app.NewConversationService(messageRepo, historyCache, publisher, log)
	chatService := app.NewChatService(
		conversations,
		registry,
		completer,
		app.ContextPolicy{MaxTurns: cfg.LLM.MaxContextTurns},
		log,
	)

	return &App{
		Config:        cfg,
		Log:           log,
		DB:            db,
		Redis:         redisCli,
		MQConn:        mqConn,
		Roles:         registry,
		Auth:          authService,
		Sessions:      sessionService,
		Conversations: conversations,
		Chat:          chatService,
		HistoryWorker: historyWorker,
		StartedAt:     time.Now(),
	}, nil
}

func closeOpened(db *gorm.DB, redisCli *redis.Client, mqConn *amqp.Connection) {
	if mqConn != nil {
		_ = mqConn.Close()
	}
	if redisCli != nil {
		_ = redisCli.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func openDatabase(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		return mysqlClient.New(ctx, cfg.MySQLDSN(), log)
	case "sqlite":
		return sqliteClient.New(ctx, cfg.SQLite.Path, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func buildRegistry(configured map[string]config.RoleConfig) (*roles.Registry, error) {
	if len(configured) == 0 {
		return roles.NewRegistry(roles.Defaults())
	}
	set := make(map[string]roles.Role, len(configured))
	for key, rc := range configured {
		set[key] = roles.Role{Prompt: rc.Prompt, Label: rc.Label}
	}
	return roles.NewRegistry(set)
}

func (a *App) Close() error {
	var closeErr error
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
