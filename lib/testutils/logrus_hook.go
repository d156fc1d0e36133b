package testutils

import (
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// SimpleLogrusHook collects the entries logged at its levels.
type SimpleLogrusHook struct {
	HookedLevels []logrus.Level

	mu      sync.Mutex
	entries []logrus.Entry
}

var _ logrus.Hook = &SimpleLogrusHook{}

// NewLogHook returns a hook for levels, or for every level if none are given.
func NewLogHook(levels ...logrus.Level) *SimpleLogrusHook {
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	return &SimpleLogrusHook{HookedLevels: levels}
}

// Levels implements logrus.Hook.
func (h *SimpleLogrusHook) Levels() []logrus.Level {
	return h.HookedLevels
}

// Fire implements logrus.Hook.
func (h *SimpleLogrusHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	h.entries = append(h.entries, *e)
	h.mu.Unlock()
	return nil
}

// Drain returns the collected entries and forgets them.
func (h *SimpleLogrusHook) Drain() []logrus.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.entries
	h.entries = nil
	return res
}

// LogContains reports whether an entry at level has a message containing
// contents.
func LogContains(entries []logrus.Entry, level logrus.Level, contents string) bool {
	return lo.ContainsBy(entries, func(e logrus.Entry) bool {
		return e.Level == level && strings.Contains(e.Message, contents)
	})
}
