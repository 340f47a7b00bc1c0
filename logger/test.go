package logger

import "os"

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Prefixes  []string
}

// TestLogger captures log entries in memory for assertions in tests.
// Loggers derived via With or WithPrefix append to the root's Logs.
type TestLogger struct {
	metadata map[string]interface{}
	prefixes []string
	Logs     []TestLogEntry
	root     *TestLogger
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) sink() *TestLogger {
	if c.root != nil {
		return c.root
	}
	return c
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	for _, p := range c.prefixes {
		if p == prefix {
			return c
		}
	}
	prefixes := append(append([]string(nil), c.prefixes...), prefix)
	return &TestLogger{metadata: c.metadata, prefixes: prefixes, root: c.sink()}
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{})
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, prefixes: c.prefixes, root: c.sink()}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	s := c.sink()
	s.Logs = append(s.Logs, TestLogEntry{severity, msg, args, c.prefixes})
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.log("ERROR", msg, args...)
}

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.log("FATAL", msg, args...)
	os.Exit(1)
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{
		Logs: make([]TestLogEntry, 0),
	}
}
