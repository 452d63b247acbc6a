package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger.
var Log = logrus.New()

// SetLevel applies a textual level. We do not use logrus' trace and panic levels.
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "", "info":
		Log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		Log.SetLevel(logrus.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// SetFormat switches between the text and JSON formatters.
func SetFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		Log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// For returns an entry tagged with the given component name.
func For(component string) *logrus.Entry {
	return Log.WithField("component", component)
}

// Leveled adapts an entry to the key/value logger interface used by go-retryablehttp.
// Per-attempt info lines are demoted to debug.
type Leveled struct {
	Entry *logrus.Entry
}

func (l Leveled) fields(kv []interface{}) *logrus.Entry {
	e := l.Entry
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.WithField(fmt.Sprint(kv[i]), kv[i+1])
	}
	return e
}

func (l Leveled) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l Leveled) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
func (l Leveled) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l Leveled) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
