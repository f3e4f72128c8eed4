// Package logger is a small structured, leveled, outlet-based logger,
// adapted from the teacher repository's logger package: fields are chained
// immutably via WithField/WithFields, and each log call fans out to every
// outlet registered for its level with a bounded timeout so a slow sink
// (e.g. a stuck network outlet) cannot stall request processing.
package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// FieldError is the field populated by WithError.
const FieldError = "err"

// FieldTransaction, FieldTrace and FieldNode are the fields the transport,
// session and dispatch packages attach so every log line can be correlated
// with the transaction id / trace id / node address from spec §3 and §6.
const (
	FieldTransaction = "trx"
	FieldTrace       = "trace"
	FieldNode        = "node"
	FieldGroup       = "group"
)

const defaultFieldCapacity = 5

type Fields map[string]interface{}

type Entry struct {
	Level   Level
	Message string
	Time    time.Time
	Fields  Fields
}

// Outlet receives log entries and writes them to some destination. It must
// not block indefinitely: Logger enforces a timeout around every outlet
// invocation and reports (to stderr) outlets that exceed it.
type Outlet interface {
	WriteEntry(entry Entry) error
}

type Logger struct {
	fields        Fields
	outlets       map[Level][]Outlet
	outletTimeout time.Duration
	mtx           *sync.Mutex
}

// New builds a Logger that dispatches to outlets registered for each level.
// A nil or empty outlets map yields a logger that discards everything.
func New(outlets map[Level][]Outlet, outletTimeout time.Duration) *Logger {
	if outlets == nil {
		outlets = map[Level][]Outlet{}
	}
	return &Logger{
		fields:        make(Fields, defaultFieldCapacity),
		outlets:       outlets,
		outletTimeout: outletTimeout,
		mtx:           &sync.Mutex{},
	}
}

// NewNull returns a Logger with no outlets; all log calls are no-ops.
func NewNull() *Logger {
	return New(nil, 0)
}

func (l *Logger) log(level Level, msg string) {
	l.mtx.Lock()
	entry := Entry{Level: level, Message: msg, Time: time.Now(), Fields: l.fields}
	outs := l.outlets[level]
	l.mtx.Unlock()

	if len(outs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.outletTimeout)
	defer cancel()

	done := make(chan error, len(outs))
	for _, o := range outs {
		go func(o Outlet) { done <- o.WriteEntry(entry) }(o)
	}
	for i := 0; i < len(outs); i++ {
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "logger: outlet error: %s\n", err)
			}
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "logger: outlet exceeded %s, continuing without it\n", l.outletTimeout)
		}
	}
}

// WithField returns a child logger with field set, sharing this logger's
// outlets and mutex (fields themselves are copy-on-write).
func (l *Logger) WithField(field string, val interface{}) *Logger {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	child := &Logger{
		fields:        make(Fields, len(l.fields)+1),
		outlets:       l.outlets,
		outletTimeout: l.outletTimeout,
		mtx:           l.mtx,
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	child.fields[field] = val
	return child
}

func (l *Logger) WithFields(fields Fields) *Logger {
	ret := l
	for k, v := range fields {
		ret = ret.WithField(k, v)
	}
	return ret
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l.WithField(FieldError, nil)
	}
	return l.WithField(FieldError, err.Error())
}

func (l *Logger) Debug(msg string) { l.log(Debug, msg) }
func (l *Logger) Info(msg string)  { l.log(Info, msg) }
func (l *Logger) Warn(msg string)  { l.log(Warn, msg) }
func (l *Logger) Error(msg string) { l.log(Error, msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(Debug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(Info, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(Warn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(Error, fmt.Sprintf(format, args...)) }
