package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging builds the logger shared by the CLI and the route table
// mirror. Returns the log file handle (caller must close it) or nil if
// logging goes to stderr.
func SetupLogging(args Args) (*logrus.Logger, *os.File, error) {
	log := logrus.New()
	log.SetLevel(parseLogLevel(args.LogLevel))

	var logFile *os.File
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		logFile = f
		log.SetOutput(f)
	} else {
		log.SetOutput(os.Stderr)
	}

	if log.GetLevel() == logrus.DebugLevel {
		log.SetReportCaller(true)
	}

	return log, logFile, nil
}

// parseLogLevel converts string to logrus.Level
func parseLogLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}
