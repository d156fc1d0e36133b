package testutils

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type testOutput struct{ testing.TB }

func (to testOutput) Write(p []byte) (n int, err error) {
	to.Logf("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}

// NewTestOutput returns a simple io.Writer implementation that uses the test's
// logger as an output.
func NewTestOutput(t testing.TB) io.Writer {
	return testOutput{t}
}

// NewLogger returns a debug-level logger that writes to t.Logf. Nothing may be
// logged through it after the test has finished.
func NewLogger(t testing.TB) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(NewTestOutput(t))
	l.SetLevel(logrus.DebugLevel)
	return l
}

// NewHookedLogger returns a logger that discards its output and a hook
// collecting every entry at the given levels.
func NewHookedLogger(levels ...logrus.Level) (*logrus.Logger, *SimpleLogrusHook) {
	hook := NewLogHook(levels...)
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	l.AddHook(hook)
	return l, hook
}
