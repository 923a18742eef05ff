// Package log provides structured logging for MOAC using zerolog. It wraps
// a global logger with component and object-id child-logger helpers, the
// same shape used across the rest of this module.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, set by Init.
var Logger zerolog.Logger

// Level is a logging verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Call once, before any logging.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Sane default so packages that log before main calls Init (unit tests)
	// don't panic on a zero-value logger.
	Init(Config{Level: InfoLevel, JSONOutput: false, Output: os.Stderr})
}

// WithComponent creates a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNode creates a child logger tagged with a node name.
func WithNode(name string) zerolog.Logger {
	return Logger.With().Str("node", name).Logger()
}

// WithPool creates a child logger tagged with a pool name.
func WithPool(name string) zerolog.Logger {
	return Logger.With().Str("pool", name).Logger()
}

// WithVolume creates a child logger tagged with a volume uuid.
func WithVolume(uuid string) zerolog.Logger {
	return Logger.With().Str("volume", uuid).Logger()
}

// WithReplica creates a child logger tagged with a replica uuid.
func WithReplica(uuid string) zerolog.Logger {
	return Logger.With().Str("replica", uuid).Logger()
}

// WithNexus creates a child logger tagged with a nexus uuid.
func WithNexus(uuid string) zerolog.Logger {
	return Logger.With().Str("nexus", uuid).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
