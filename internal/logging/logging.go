package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// writerHook sends formatted entries at the given levels to one writer.
// The standard logger's own output is discarded; the console and the
// per-run log file are both attached as hooks so they can carry
// different levels (info for the console, debug for the file).
type writerHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// Setup configures the shared logger: info and above on the console,
// debug and above in logPath. Returns a closer for the log file.
func Setup(logPath string) (io.Closer, error) {
	logrus.SetOutput(io.Discard)
	logrus.SetLevel(logrus.DebugLevel)

	logrus.AddHook(&writerHook{
		writer: os.Stdout,
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     isatty.IsTerminal(os.Stdout.Fd()),
		},
		levels: []logrus.Level{
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel,
			logrus.WarnLevel, logrus.InfoLevel,
		},
	})

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	logrus.AddHook(&writerHook{
		writer: f,
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   true,
		},
		levels: logrus.AllLevels,
	})

	return f, nil
}
