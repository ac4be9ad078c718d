package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TestLogger captures log messages in memory for inspection in tests.
// Entries are written as JSON lines so tests can assert on structured
// fields, mirroring what the zerolog backend would emit.
type TestLogger struct {
	mu     sync.Mutex
	buffer *bytes.Buffer
	fields map[string]interface{}
}

// NewTestLogger creates a TestLogger and returns it together with the buffer
// holding the captured output.
func NewTestLogger() (*TestLogger, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	return &TestLogger{
		buffer: buffer,
		fields: make(map[string]interface{}),
	}, buffer
}

// Debug implements Logger.
func (t *TestLogger) Debug(msg string, fields ...any) { t.writeLog("debug", msg, fields...) }

// Info implements Logger.
func (t *TestLogger) Info(msg string, fields ...any) { t.writeLog("info", msg, fields...) }

// Warn implements Logger.
func (t *TestLogger) Warn(msg string, fields ...any) { t.writeLog("warn", msg, fields...) }

// Error implements Logger.
func (t *TestLogger) Error(msg string, fields ...any) { t.writeLog("error", msg, fields...) }

// With implements Logger.
func (t *TestLogger) With(fields ...any) Logger {
	newFields := make(map[string]interface{}, len(t.fields))
	for k, v := range t.fields {
		newFields[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			newFields[key] = err.Error()
		} else {
			newFields[key] = fields[i+1]
		}
	}
	return &TestLogger{
		buffer: t.buffer,
		fields: newFields,
	}
}

func (t *TestLogger) writeLog(level, msg string, fields ...any) {
	entry := map[string]interface{}{
		"level":   level,
		"message": msg,
	}
	for k, v := range t.fields {
		entry[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		if err, ok := fields[i+1].(error); ok {
			entry[key] = err.Error()
		} else {
			entry[key] = fields[i+1]
		}
	}

	jsonData, _ := json.Marshal(entry)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.WriteString(string(jsonData) + "\n")
}

// Entries parses the captured output and returns structured log entries.
func (t *TestLogger) Entries() ([]map[string]interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.buffer.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any captured entry contains the message.
func (t *TestLogger) ContainsMessage(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Contains(t.buffer.String(), message)
}

// Clear discards all captured log content.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.Reset()
}
