package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// New returns the process logger: human-readable text in dev, JSON elsewhere.
func New(env, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if strings.EqualFold(env, "dev") || env == "" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// Discard is a logger for tests and optional components.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type gormWriter struct {
	log logrus.FieldLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// Gorm adapts log for gorm. Slow queries and errors are reported; a missing
// row is a normal lookup result and stays quiet.
func Gorm(log logrus.FieldLogger) gormlogger.Interface {
	return gormlogger.New(gormWriter{log: log.WithField("component", "gorm")}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
