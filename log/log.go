package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

// Logger is a global interface for resound loggers
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("RESOUND_DEBUG"))
	if err != nil {
		debug = false
	}
}

var root = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// GetLogger returns the shared logger instance.
func GetLogger() *logrus.Logger {
	return root
}

// SetLevel changes the level of the shared logger.
func SetLevel(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root.SetLevel(l)
	return nil
}

// SetOutput redirects the shared logger, e.g. to a file.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}
