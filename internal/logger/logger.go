package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	log  zerolog.Logger
)

// Get returns the process logger. The first call decides the level:
// Get(true) enables debug output, later arguments are ignored.
func Get(debug ...bool) zerolog.Logger {
	once.Do(func() {
		level := zerolog.InfoLevel
		if len(debug) > 0 && debug[0] {
			level = zerolog.DebugLevel
		}
		log = New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, level)
	})
	return log
}

// New builds a logger writing to w. Tests use it with io.Discard or a buffer.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
