// Package logger fans log calls out to the backends registered with Init.
// Calls made before Init are dropped.
package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type level int

const (
	levelLog level = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var (
	mu        sync.RWMutex
	instances []LoggerInstance
)

// Init replaces the registered backends.
func Init(backends ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	instances = backends
}

func dispatch(l level, message string, keyvals []any) {
	mu.RLock()
	backends := instances
	mu.RUnlock()

	for _, b := range backends {
		switch l {
		case levelDebug:
			b.Debug(message, keyvals...)
		case levelInfo:
			b.Info(message, keyvals...)
		case levelWarn:
			b.Warn(message, keyvals...)
		case levelError:
			b.Error(message, keyvals...)
		case levelFatal:
			b.Fatal(message, keyvals...)
		default:
			b.Log(message, keyvals...)
		}
	}
}

func Log(message string, keyvals ...any)   { dispatch(levelLog, message, keyvals) }
func Debug(message string, keyvals ...any) { dispatch(levelDebug, message, keyvals) }
func Info(message string, keyvals ...any)  { dispatch(levelInfo, message, keyvals) }
func Warn(message string, keyvals ...any)  { dispatch(levelWarn, message, keyvals) }
func Error(message string, keyvals ...any) { dispatch(levelError, message, keyvals) }

// Fatal logs at FATAL level. Backends decide whether to exit.
func Fatal(message string, keyvals ...any) { dispatch(levelFatal, message, keyvals) }

// Scoped prefixes every call with a fixed set of key/value pairs, e.g. the
// run id and unit name of a migration.
type Scoped struct {
	keyvals []any
}

// With returns a Scoped logger carrying keyvals.
func With(keyvals ...any) *Scoped {
	return &Scoped{keyvals: keyvals}
}

// With returns a child carrying the parent's pairs followed by keyvals.
func (s *Scoped) With(keyvals ...any) *Scoped {
	kv := make([]any, 0, len(s.keyvals)+len(keyvals))
	kv = append(kv, s.keyvals...)
	return &Scoped{keyvals: append(kv, keyvals...)}
}

func (s *Scoped) merge(keyvals []any) []any {
	if len(s.keyvals) == 0 {
		return keyvals
	}
	kv := make([]any, 0, len(s.keyvals)+len(keyvals))
	kv = append(kv, s.keyvals...)
	return append(kv, keyvals...)
}

func (s *Scoped) Debug(message string, keyvals ...any) {
	dispatch(levelDebug, message, s.merge(keyvals))
}

func (s *Scoped) Info(message string, keyvals ...any) {
	dispatch(levelInfo, message, s.merge(keyvals))
}

func (s *Scoped) Warn(message string, keyvals ...any) {
	dispatch(levelWarn, message, s.merge(keyvals))
}

func (s *Scoped) Error(message string, keyvals ...any) {
	dispatch(levelError, message, s.merge(keyvals))
}
