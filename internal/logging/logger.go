// Package logging configures the process-wide logrus logger, wrapped
// behind a Logger() accessor so every package logs through the same
// instance and the same redaction hook.
package logging

import (
	"os"
	"strings"
	"sync"

	logrusstack "github.com/Gurpartap/logrus-stack"
	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger = logrus.New()
)

// redactedFields never leave the process, even if a caller accidentally
// attaches one of them to a log entry. Credentials must never appear in an
// emitted log record; this hook enforces that at the logging boundary.
var redactedFields = map[string]struct{}{
	"password":      {},
	"real_password": {},
	"secret":        {},
	"secret_key":    {},
	"shared_secret": {},
	"bind_password": {},
}

type redactionHook struct{}

func (redactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (redactionHook) Fire(entry *logrus.Entry) error {
	for field := range entry.Data {
		if _, redacted := redactedFields[strings.ToLower(field)]; redacted {
			entry.Data[field] = "[REDACTED]"
		}
	}

	return nil
}

// Logger returns the process-wide logger, configuring it on first use.
func Logger() *logrus.Logger {
	once.Do(func() {
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.AddHook(redactionHook{})
		logger.AddHook(logrusstack.StandardHook())
	})

	return logger
}

// Configure applies the runtime log level and, if logFile is non-empty,
// duplicates output to that file in addition to stdout.
func Configure(level string, logFile string, debug bool) error {
	l := Logger()

	if debug {
		level = "debug"
	}

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}

	l.SetLevel(parsed)

	if logFile == "" {
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}

	l.AddHook(&fileHook{file: f, level: parsed})

	return nil
}

// fileHook duplicates formatted entries to an open file descriptor. No
// rotation: operators are expected to rotate via logrotate(8).
type fileHook struct {
	file  *os.File
	level logrus.Level
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	if entry.Level > h.level {
		return nil
	}

	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}

	_, err = h.file.Write(line)

	return err
}
