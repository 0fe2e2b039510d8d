// Package logger provides structured logging for the mcpsentry engine
package logger

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	logger := logrus.New()

	logger.SetLevel(level)

	// Use JSON formatter for structured logging in production
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: logger}
}

// WithContext adds context-specific fields to the logger
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	if reqID := ctx.Value("request_id"); reqID != nil {
		entry = entry.WithField("request_id", reqID)
	}

	return entry
}

// WithRun adds run-specific fields to the logger
func (l *Logger) WithRun(runID, stage string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  stage,
	})
}

// WithCheck adds check-specific fields to the logger
func (l *Logger) WithCheck(category, check, target string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"category": category,
		"check":    check,
		"target":   target,
	})
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// LogStage logs the start and end of a run stage, returning the stage's error
func (l *Logger) LogStage(runID, stage string, fn func() error) error {
	start := time.Now()

	l.WithFields(Fields{
		"run_id": runID,
		"stage":  stage,
		"action": "start",
	}).Info("Stage started")

	err := fn()
	duration := time.Since(start)

	fields := Fields{
		"run_id":   runID,
		"stage":    stage,
		"action":   "complete",
		"duration": duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Stage failed")
	} else {
		l.WithFields(fields).Info("Stage completed")
	}

	return err
}

// Default logger instance
var defaultLogger = NewLogger(logrus.InfoLevel)

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

// Info logs an info message using the default logger
func Info(args ...interface{}) {
	defaultLogger.Info(args...)
}

// Infof logs a formatted info message using the default logger
func Infof(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

// Error logs an error message using the default logger
func Error(args ...interface{}) {
	defaultLogger.Error(args...)
}

// Errorf logs a formatted error message using the default logger
func Errorf(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

// WithFields returns an entry with the specified fields using the default logger
func WithFields(fields Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}
