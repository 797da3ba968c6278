// Package logging configures the global zerolog logger and emits the
// one-line startup summary every binary logs after init.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar selects the log level: debug, info, warn, error (default: info).
const LevelEnvVar = "STAGER_LOG_LEVEL"

// Init initializes the global logger from STAGER_LOG_LEVEL. Inside Lambda
// the output stays JSON so CloudWatch Logs Insights can query fields;
// elsewhere it is a human-readable console writer on stderr.
func Init() {
	SetLevel(os.Getenv(LevelEnvVar))
	log.Logger = zerolog.New(output(os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "", os.Stderr)).
		With().Timestamp().Logger()
}

// SetLevel applies a level name. Unknown names mean info.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func output(inLambda bool, w io.Writer) io.Writer {
	if inLambda {
		return w
	}
	return zerolog.ConsoleWriter{Out: w}
}
