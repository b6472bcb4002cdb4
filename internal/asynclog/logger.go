// Package asynclog wraps logrus in a non-blocking sink: callers never
// wait on I/O to emit a log line (§5 "no shared mutable state beyond...").
package asynclog

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type logEntry struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

// Logger buffers log entries on a channel and writes them from a
// single drain goroutine, the same make(chan X)+go func(){...}
// producer/consumer shape the upstream streaming code uses for SSE
// chunks, applied here to log lines instead.
type Logger struct {
	out *logrus.Logger
	ch  chan logEntry

	closeOnce sync.Once
	done      chan struct{}
}

// New starts the drain goroutine against out, buffering up to
// bufferSize pending entries before Info/Warn/Error starts blocking
// the caller (back-pressure rather than unbounded growth).
func New(out *logrus.Logger, bufferSize int) *Logger {
	l := &Logger{
		out:  out,
		ch:   make(chan logEntry, bufferSize),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.ch {
		entry := l.out.WithFields(e.fields)
		switch e.level {
		case logrus.ErrorLevel:
			entry.Error(e.msg)
		case logrus.WarnLevel:
			entry.Warn(e.msg)
		case logrus.DebugLevel:
			entry.Debug(e.msg)
		default:
			entry.Info(e.msg)
		}
	}
}

func (l *Logger) enqueue(level logrus.Level, msg string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	l.ch <- logEntry{level: level, msg: msg, fields: fields}
}

func (l *Logger) Info(msg string, fields logrus.Fields)  { l.enqueue(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields logrus.Fields)  { l.enqueue(logrus.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields logrus.Fields) { l.enqueue(logrus.ErrorLevel, msg, fields) }
func (l *Logger) Debug(msg string, fields logrus.Fields) { l.enqueue(logrus.DebugLevel, msg, fields) }

// Close stops accepting new entries and blocks until the drain
// goroutine has flushed everything already queued (mirrors the
// queue/batch-writer shutdown-drains contract of §4.6/§5).
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.ch)
	})
	<-l.done
}
