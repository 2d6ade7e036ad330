package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with structured logging for the profit tracker
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level, format string) *Logger {
	logger := logrus.New()

	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	switch strings.ToLower(format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger}
}

// NewQuietLogger returns an error-level logger that writes nowhere.
// Used when a component is constructed without a logger (tests mostly).
func NewQuietLogger() *Logger {
	l := NewLogger("error", "json")
	l.SetOutput(io.Discard)
	return l
}

// OrQuiet returns l, or a quiet logger when l is nil
func OrQuiet(l *Logger) *Logger {
	if l == nil {
		return NewQuietLogger()
	}
	return l
}

// WithComponent adds a component field to all log entries
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithRefresh adds refresh context to log entries
func (l *Logger) WithRefresh(refreshID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"component":  "price_cache",
		"refresh_id": refreshID,
	})
}

// WithDiscord adds Discord context to log entries
func (l *Logger) WithDiscord() *logrus.Entry {
	return l.WithField("component", "discord_bot")
}

// WithAuction adds auction API context to log entries
func (l *Logger) WithAuction() *logrus.Entry {
	return l.WithField("component", "auction_api")
}

// WithError adds error context
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithField("error", err.Error())
}

// SetOutput sets the logger output destination
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// RefreshStart logs the start of a bulk refresh
func (l *Logger) RefreshStart(refreshID string) {
	l.WithRefresh(refreshID).Info("Bulk refresh started")
}

// RefreshComplete logs a finished bulk refresh
func (l *Logger) RefreshComplete(refreshID string, duration float64, loaded, skipped int) {
	l.WithRefresh(refreshID).WithFields(logrus.Fields{
		"duration_seconds": duration,
		"entries_loaded":   loaded,
		"entries_skipped":  skipped,
	}).Info("Bulk refresh completed")
}

// RefreshError logs a failed bulk refresh
func (l *Logger) RefreshError(refreshID string, err error, duration float64) {
	l.WithRefresh(refreshID).WithFields(logrus.Fields{
		"duration_seconds": duration,
		"error":            err.Error(),
	}).Error("Bulk refresh failed")
}

// APICall logs API call attempts
func (l *Logger) APICall(component, endpoint string, method string) {
	l.WithField("component", component).WithFields(logrus.Fields{
		"endpoint": endpoint,
		"method":   method,
	}).Debug("API call initiated")
}

// APISuccess logs successful API responses
func (l *Logger) APISuccess(component, endpoint string, duration float64, statusCode int) {
	l.WithField("component", component).WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"duration_ms": duration * 1000,
		"status_code": statusCode,
	}).Debug("API call successful")
}

// APIError logs API call failures
func (l *Logger) APIError(component, endpoint string, err error, duration float64, statusCode int) {
	l.WithField("component", component).WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"duration_ms": duration * 1000,
		"status_code": statusCode,
		"error":       err.Error(),
	}).Error("API call failed")
}

// DiscordMessage logs Discord message events
func (l *Logger) DiscordMessage(channelID, messageID string, length int) {
	l.WithDiscord().WithFields(logrus.Fields{
		"channel_id":     channelID,
		"message_id":     messageID,
		"message_length": length,
	}).Info("Discord message sent")
}

// DiscordError logs Discord API errors
func (l *Logger) DiscordError(action string, err error) {
	l.WithDiscord().WithFields(logrus.Fields{
		"action": action,
		"error":  err.Error(),
	}).Error("Discord operation failed")
}
