package core

import "sync/atomic"

// CancellationFlag is a one-shot latch. Once set it stays set.
// The zero value is ready to use and unset.
type CancellationFlag struct {
	set atomic.Bool
}

// IsSet reports whether the flag has been set. It never blocks.
func (f *CancellationFlag) IsSet() bool {
	return f.set.Load()
}

// Set latches the flag. Calling it more than once has no further effect.
func (f *CancellationFlag) Set() {
	f.set.Store(true)
}

// CancellationSource is an external signal that cancels every task bound to it,
// for example the teardown of the screen that submitted the work.
//
// Any context.Context satisfies this interface.
type CancellationSource interface {
	Done() <-chan struct{}
}

func sourceFired(src CancellationSource) bool {
	if src == nil {
		return false
	}
	select {
	case <-src.Done():
		return true
	default:
		return false
	}
}
