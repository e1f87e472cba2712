package logutils

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// UTCFormatter is a log formatter that prints with UTC timestamps.
type UTCFormatter struct {
	logrus.Formatter
}

func (u *UTCFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Time = e.Time.UTC()
	return u.Formatter.Format(e)
}

// SetLogFormat selects the TEXT or JSON formatter, both printing UTC timestamps.
func SetLogFormat(logFormat string) {
	switch strings.ToUpper(logFormat) {
	case "JSON":
		logrus.SetFormatter(&UTCFormatter{Formatter: &logrus.JSONFormatter{}})
	default:
		logrus.SetFormatter(&UTCFormatter{Formatter: &logrus.TextFormatter{FullTimestamp: true}})
	}
}

// SetLogLevel sets the global log level, defaulting to INFO on unknown input.
func SetLogLevel(logLevel string) {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		logrus.SetLevel(logrus.DebugLevel)
	case "WARN":
		logrus.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// SetupTestLogging configures verbose logging for tests.
func SetupTestLogging() {
	logrus.SetLevel(logrus.DebugLevel)
	logrus.SetFormatter(&UTCFormatter{Formatter: &logrus.TextFormatter{FullTimestamp: true}})
}
