package sqlite

import (
	"io"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
