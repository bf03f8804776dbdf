// Package logger provides the process-wide structured logger backed by
// zerolog. Initialise once at startup with Init, then use the package-level
// helpers anywhere.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var instance = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Options controls logger behaviour at initialisation time.
type Options struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string
	// Pretty enables human-friendly console output. Use false in
	// production to emit pure JSON.
	Pretty bool
}

// Init initialises the package logger.
func Init(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339

	out := zerolog.New(os.Stdout)
	if opts.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	instance = out.Level(parseLevel(opts.Level)).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Debug(msg string, fields map[string]any) {
	instance.Debug().Fields(fields).Msg(msg)
}

func Info(msg string, fields map[string]any) {
	instance.Info().Fields(fields).Msg(msg)
}

func Warn(msg string, fields map[string]any) {
	instance.Warn().Fields(fields).Msg(msg)
}

func Error(msg string, fields map[string]any) {
	instance.Error().Fields(fields).Msg(msg)
}

// Fatal logs the message and terminates the process.
func Fatal(msg string, fields map[string]any) {
	instance.Fatal().Fields(fields).Msg(msg)
}
