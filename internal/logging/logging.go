// Package logging configures the logrus logger shared by every component of
// the relay bot.
//
// Every entry carries service and env fields. Feature constructors derive a
// component entry from the process logger so log lines can be filtered per
// subsystem, and handlers add per-update fields through WithContext.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/config"
)

const serviceName = "contact-relay-bot"

var (
	mu         sync.RWMutex
	baseLogger *logrus.Entry
)

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context captures per-update fields. Zero values are omitted.
type Context struct {
	UserID  int64
	ChatID  int64
	Event   string
	Command string
}

// Fields renders the non-zero values of c.
func (c Context) Fields() Fields {
	fields := Fields{}

	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if event := strings.TrimSpace(c.Event); event != "" {
		fields["event"] = event
	}
	if c.Command != "" {
		fields["command"] = c.Command
	}

	return fields
}

// Setup builds the process logger from cfg: JSON in production, full-timestamp
// text in development, at the configured level.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	entry := newEntry(level, cfg.AppEnv)

	mu.Lock()
	baseLogger = entry
	mu.Unlock()

	return entry, nil
}

// Logger returns the process logger. Before Setup runs it returns a production
// logger at info level so early boot errors are still structured.
func Logger() *logrus.Entry {
	mu.RLock()
	entry := baseLogger
	mu.RUnlock()
	if entry != nil {
		return entry
	}

	mu.Lock()
	defer mu.Unlock()
	if baseLogger == nil {
		baseLogger = newEntry(logrus.InfoLevel, config.DefaultAppEnv)
	}
	return baseLogger
}

// Component tags base with the subsystem name. A nil base falls back to Logger.
func Component(base *logrus.Entry, name string) *logrus.Entry {
	if base == nil {
		base = Logger()
	}
	return base.WithField("component", name)
}

// WithContext adds the per-update fields of ctx to base. A nil base falls back
// to Logger.
func WithContext(base *logrus.Entry, ctx Context) *logrus.Entry {
	if base == nil {
		base = Logger()
	}

	fields := ctx.Fields()
	if len(fields) == 0 {
		return base
	}
	return base.WithFields(fields)
}

// Info logs on the process logger. Used before component loggers exist.
func Info(msg string, fields Fields) {
	Logger().WithFields(fields).Info(msg)
}

// Error logs on the process logger. Used before component loggers exist.
func Error(msg string, fields Fields) {
	Logger().WithFields(fields).Error(msg)
}

func newEntry(level logrus.Level, appEnv string) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	mu.Lock()
	baseLogger = nil
	mu.Unlock()
}
