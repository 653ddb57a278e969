package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

// ParseLevel accepts the numeric service levels (0-4) as well as logrus
// level names ("debug", "warn", ...).
func ParseLevel(s string) (LogLevel, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(LogLevelNone) || n > int(LogLevelDebug) {
			return LogLevelNone, fmt.Errorf("log level %d out of range 0-4", n)
		}
		return LogLevel(n), nil
	}
	if s == "none" || s == "off" {
		return LogLevelNone, nil
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return LogLevelNone, err
	}
	switch {
	case lvl >= logrus.DebugLevel:
		return LogLevelDebug, nil
	case lvl == logrus.InfoLevel:
		return LogLevelInfo, nil
	case lvl == logrus.WarnLevel:
		return LogLevelWarning, nil
	default:
		return LogLevelError, nil
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelWarning:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

type Logger struct {
	entry *logrus.Entry
	level LogLevel
	tag   string
}

// NewLogger builds a leveled logger writing to out. A nil writer discards
// everything, which is what tests want.
func NewLogger(out io.Writer, level LogLevel) *Logger {
	base := logrus.New()
	if out == nil {
		out = io.Discard
	}
	base.SetOutput(out)
	base.SetLevel(level.logrusLevel())
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, journald adds its own timestamps
		base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000000",
		})
	}
	return &Logger{
		entry: logrus.NewEntry(base),
		level: level,
	}
}

// WithTag creates a new logger with a tag field
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{
		entry: l.entry.WithField("tag", tag),
		level: l.level,
		tag:   tag,
	}
}

// WithFields returns a logger carrying structured fields on every line.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		entry: l.entry.WithFields(logrus.Fields(fields)),
		level: l.level,
		tag:   l.tag,
	}
}

// Entry exposes the underlying logrus entry for libraries that take a
// logrus.FieldLogger (the HTTP request logger).
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.entry.Debugf(format, v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.entry.Infof(format, v...)
	}
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.entry.Warnf(format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.entry.Errorf(format, v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.entry.Fatalf(format, v...)
}

// Since logs how long an operation took at debug level.
func (l *Logger) Since(what string, start time.Time) {
	l.Debugf("%s took %s", what, time.Since(start))
}
