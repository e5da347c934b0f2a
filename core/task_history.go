package core

import (
	"reflect"
	"runtime"
	"sync"
)

const defaultTaskHistoryCapacity = 100

type executionHistory struct {
	mu    sync.Mutex
	items []TaskExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return executionHistory{items: make([]TaskExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]TaskExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return TaskExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// resolveTaskName prefers the explicit name, then the body's function name.
func resolveTaskName(body any, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if body == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(body)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		return "anonymous"
	}

	name := fn.Name()
	if name == "" {
		return "anonymous"
	}
	return name
}

// classifyOutcome maps a terminal state and its error onto an Outcome label.
func classifyOutcome(state TaskState, err error) string {
	switch state {
	case TaskSucceeded:
		return OutcomeSucceeded
	case TaskCancelled:
		return OutcomeCancelled
	}
	switch {
	case isTimeout(err):
		return OutcomeTimedOut
	case isPanic(err):
		return OutcomePanicked
	default:
		return OutcomeFailed
	}
}
