package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/config"
)

// New builds a logrus logger from the log section of a config.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
