package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one recorded log call.
type Entry struct {
	Level string
	Msg   string
	KV    []interface{}
}

// String renders the entry as "LEVEL msg k=v ...".
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level)
	b.WriteString(" ")
	b.WriteString(e.Msg)
	for i := 0; i+1 < len(e.KV); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.KV[i], e.KV[i+1])
	}
	return b.String()
}

// RecordingLogger records log calls for assertions. It satisfies
// logging.Logger.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *RecordingLogger) record(level, msg string, kv []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, KV: kv})
}

func (r *RecordingLogger) Debug(msg string, kv ...interface{}) { r.record("DEBUG", msg, kv) }
func (r *RecordingLogger) Info(msg string, kv ...interface{})  { r.record("INFO", msg, kv) }
func (r *RecordingLogger) Warn(msg string, kv ...interface{})  { r.record("WARN", msg, kv) }
func (r *RecordingLogger) Error(msg string, kv ...interface{}) { r.record("ERROR", msg, kv) }

// Entries returns the entries recorded at level, or all entries when level
// is empty.
func (r *RecordingLogger) Entries(level string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
