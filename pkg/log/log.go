package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
)

// Logger is the process-wide logger; it discards everything until Init runs
var Logger zerolog.Logger = zerolog.Nop()

// Level is a log verbosity accepted in config files and on the command line
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var levels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel validates a level name
func ParseLevel(s string) (Level, error) {
	level := Level(s)
	if _, ok := levels[level]; !ok {
		return "", fmt.Errorf("log level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

// HCLogLevel maps the level onto hclog for the raft library's logger.
// Unknown levels map to info.
func (l Level) HCLogLevel() hclog.Level {
	switch l {
	case DebugLevel:
		return hclog.Debug
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

var current = InfoLevel

// Init configures the global logger. An unknown level falls back to info.
func Init(cfg Config) {
	level, ok := levels[cfg.Level]
	if !ok {
		cfg.Level = InfoLevel
		level = zerolog.InfoLevel
	}
	current = cfg.Level
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// CurrentLevel returns the level set by the last Init
func CurrentLevel() Level {
	return current
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger with the management node id
func WithNodeID(nodeID int64) zerolog.Logger {
	return Logger.With().Int64("node_id", nodeID).Logger()
}

// WithResource scopes a logger to one managed resource
func WithResource(logger zerolog.Logger, resourceType, resourceID string) zerolog.Logger {
	return logger.With().
		Str("resource_type", resourceType).
		Str("resource_id", resourceID).
		Logger()
}
