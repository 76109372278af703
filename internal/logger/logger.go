package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, configured once at startup by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger per [logging] level/format.
func Initialize(level string, format string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "neo6").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Router creates a logger scoped to the transaction router.
func Router() *zerolog.Logger {
	l := Log.With().Str("component", "router").Logger()
	return &l
}

// Loader creates a logger scoped to the protocol loader.
func Loader() *zerolog.Logger {
	l := Log.With().Str("component", "loader").Logger()
	return &l
}

// Admin creates a logger scoped to the admin control socket.
func Admin() *zerolog.Logger {
	l := Log.With().Str("component", "admin").Logger()
	return &l
}

// TN3270 creates a logger scoped to the TN3270 subsystem.
func TN3270() *zerolog.Logger {
	l := Log.With().Str("component", "tn3270").Logger()
	return &l
}

// Listener creates a logger scoped to a named frontend listener.
func Listener(protocol string) *zerolog.Logger {
	l := Log.With().Str("component", "listener").Str("protocol", protocol).Logger()
	return &l
}

// Breaker creates a logger scoped to the circuit breaker.
func Breaker() *zerolog.Logger {
	l := Log.With().Str("component", "breaker").Logger()
	return &l
}

// Metrics creates a logger scoped to the metrics collector.
func Metrics() *zerolog.Logger {
	l := Log.With().Str("component", "metrics").Logger()
	return &l
}

// Plugin creates a logger scoped to a named outbound protocol plugin.
func Plugin(protocol string) *zerolog.Logger {
	l := Log.With().Str("component", "plugin").Str("protocol", protocol).Logger()
	return &l
}
