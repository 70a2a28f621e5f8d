// Package logging sets up zerolog for the host tools and routes the
// runtime's debug output into it
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"crosscore/core"
)

// New returns a logger at the named level. Output to a terminal is
// rendered with zerolog's console writer, anything else as JSON lines.
func New(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// DebugWriter adapts log into a core.DebugWriter. Runtime lines arrive
// preformatted, so they are logged at debug level under the "runtime" field.
func DebugWriter(log zerolog.Logger) core.DebugWriter {
	return func(msg string) {
		log.Debug().Str("runtime", msg).Send()
	}
}

// Attach routes core debug output into log and enables it when log would
// print debug events. Messages queued by interrupt handlers through
// core.DebugAsync are delivered by the runtime's async worker.
func Attach(log zerolog.Logger) {
	core.SetDebugWriter(DebugWriter(log))
	core.SetDebugEnabled(log.GetLevel() <= zerolog.DebugLevel)
	core.InitAsyncDebug()
}
