package testenv

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger records log entries as "LEVEL msg key=value ..." lines, with
// keys sorted, so tests can assert on them.
type Logger struct {
	mu      sync.Mutex
	entries []string
}

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }

// Entries returns the recorded lines in order.
func (l *Logger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Contains reports whether any entry at level starts with msg.
func (l *Logger) Contains(level, msg string) bool {
	prefix := level + " " + msg
	for _, e := range l.Entries() {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func (l *Logger) record(level, msg string, args []any) {
	var attrs []string
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	sort.Strings(attrs)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}

	l.mu.Lock()
	l.entries = append(l.entries, b.String())
	l.mu.Unlock()
}
