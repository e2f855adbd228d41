// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a logger writing JSON lines to stderr. Stdout is reserved for
// command output and the MCP stdio transport.
func New(serviceName, level string) zerolog.Logger {
	return NewWithWriter(os.Stderr, serviceName, level)
}

// NewWithWriter is New with an explicit destination.
// Call sites should use .Stack() on error events to include stacks.
func NewWithWriter(w io.Writer, serviceName, level string) zerolog.Logger {
	// Attach a pkg/errors stack even to std errors when .Stack() is used
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lvl).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
