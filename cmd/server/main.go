package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rolechat/internal/bootstrap"
	"rolechat/internal/pkg/logger"
	httptransport "rolechat/internal/transport/http"
)

func main() {
	ctx := context.Background()
	log := logger.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	app, err := bootstrap.New(ctx, log)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Error("close resources failed")
		}
	}()
	applyConfiguredLogging(log, app.Config.App.Env, app.Config.App.LogLevel)

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	waitForShutdown(server, log)
}

// applyConfiguredLogging re-applies the formatter and level once the config
// file has been read, since the logger is created before it.
func applyConfiguredLogging(log *logrus.Logger, env, level string) {
	configured := logger.New(env, level)
	log.SetFormatter(configured.Formatter)
	log.SetLevel(configured.GetLevel())
}

func waitForShutdown(server *http.Server, log logrus.FieldLogger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}
