package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the process-wide structured logger: JSON lines on
// stdout, level taken from LOG_LEVEL when parseable.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	return logger
}
