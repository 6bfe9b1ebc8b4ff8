// Package qslog wraps logrus behind a small interface so call sites never
// import logrus directly, and maps quickstream's five stderr severities
// (ERROR/WARN/NOTICE/INFO/DEBUG) onto logrus's levels.
package qslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the interface every quickstream component logs through.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Notice(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a Logger with the given level ("trace".."error") and format
// ("text" or "json").
func New(level, format string) Logger {
	l := logrus.New()

	switch level {
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	l.SetOutput(os.Stderr)
	l.SetReportCaller(false)

	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func toLogrusFields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func (l *logrusLogger) Trace(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Trace(msg)
}

func (l *logrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

// Notice has no logrus equivalent; it logs at Info with an explicit marker
// field so JSON consumers can still distinguish it from plain Info lines.
func (l *logrusLogger) Notice(msg string, fields ...Field) {
	withNotice := append(append([]Field{}, fields...), Field{Key: "notice", Value: true})
	l.entry.WithFields(toLogrusFields(withNotice)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

func (l *logrusLogger) WithFields(fields ...Field) Logger {
	return &logrusLogger{entry: l.entry.WithFields(toLogrusFields(fields))}
}

// Nop is a Logger that discards everything; useful as a test default.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Trace(string, ...Field)     {}
func (nopLogger) Debug(string, ...Field)     {}
func (nopLogger) Info(string, ...Field)      {}
func (nopLogger) Notice(string, ...Field)    {}
func (nopLogger) Warn(string, ...Field)      {}
func (nopLogger) Error(string, ...Field)     {}
func (nopLogger) WithFields(...Field) Logger { return nopLogger{} }
