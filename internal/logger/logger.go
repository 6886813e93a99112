package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var Log zerolog.Logger

func init() {
	// Configure ZeroLog in text mode with colors
	Log = newConsole(os.Stderr)

	// Set default log level to Info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func newConsole(out io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    false,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// SetOutput redirects the global logger, used by the CLI when stderr is busy
func SetOutput(out io.Writer) {
	Log = newConsole(out)
}

// SetLevel sets the global log level
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel converts a configuration string such as "debug" to a level
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// With returns a child of the global logger tagged with a component name
func With(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}
