package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup initializes the global zerolog level and returns a logger tagged with service.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output,
//     "auto" for pretty only when stdout is a terminal
func Setup(level, format, service string) zerolog.Logger {
	if format == "auto" {
		format = "json"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			format = "pretty"
		}
	}
	return New(os.Stdout, level, format, service)
}

// New builds a logger writing to w. Unknown levels fall back to info.
func New(w io.Writer, level, format, service string) zerolog.Logger {
	if format == "pretty" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(w).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
