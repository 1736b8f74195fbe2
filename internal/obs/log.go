package obs

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// SetLevel adjusts the shared logger verbosity. Unknown levels fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger().SetLevel(lvl)
}

// Component returns a logger entry tagged with the emitting component.
func Component(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}

// LogRequest emits a structured JSON log line with common HTTP fields.
// The "msg" key, when present, becomes the log message.
func LogRequest(entry map[string]any) {
	fields := make(logrus.Fields, len(entry))
	msg := "request"
	for k, v := range entry {
		if k == "msg" {
			if s, ok := v.(string); ok && s != "" {
				msg = s
			}
			continue
		}
		fields[k] = v
	}
	Logger().WithFields(fields).Info(msg)
}
