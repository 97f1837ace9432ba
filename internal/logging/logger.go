// Package logging wraps logrus with facetctl's component-tagged defaults.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger that stamps every entry with its component.
type Logger struct {
	*logrus.Logger
	component string
}

// Config selects level, format and destination.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New builds a logger for component from cfg.
func New(component string, cfg Config) (*Logger, error) {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	base.AddHook(componentHook(component))
	return &Logger{Logger: base, component: component}, nil
}

// NewDefault returns an info-level text logger writing to stderr.
func NewDefault(component string) *Logger {
	l, _ := New(component, Config{})
	return l
}

// NewDiscard returns a logger that drops everything; used in tests.
func NewDiscard() *Logger {
	l, _ := New("test", Config{Output: io.Discard})
	return l
}

// Component returns the name stamped on entries.
func (l *Logger) Component() string { return l.component }

// WithFieldMap returns an entry carrying fields.
func (l *Logger) WithFieldMap(fields map[string]interface{}) *logrus.Entry {
	return l.WithFields(logrus.Fields(fields))
}

type componentHook string

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["component"]; !ok {
		e.Data["component"] = string(h)
	}
	return nil
}
