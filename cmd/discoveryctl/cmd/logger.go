package cmd

import (
	"os"

	"github.com/rs/zerolog"
)

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if logLevelFromDebug() == "debug" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
