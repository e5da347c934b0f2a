package core

import "sync"

// Lifecycle is the teardown signal of a GUI owner such as a screen or view.
// The framework integration implements it; Owner is a ready-made version.
type Lifecycle interface {
	CancellationSource

	// OnDestroy registers fn to run when the owner is torn down. If the owner
	// is already gone fn runs immediately. The returned func unregisters fn.
	OnDestroy(fn func()) (remove func())
}

// Owner is a single-fire lifecycle. Destroy runs the registered observers
// synchronously, in registration order, before it returns.
type Owner struct {
	name string

	mu        sync.Mutex
	done      chan struct{}
	destroyed bool
	observers []ownerObserver
	nextID    uint64
}

type ownerObserver struct {
	id uint64
	fn func()
}

var _ Lifecycle = (*Owner)(nil)

// NewOwner creates a live owner.
func NewOwner(name string) *Owner {
	return &Owner{
		name: name,
		done: make(chan struct{}),
	}
}

func (o *Owner) Name() string { return o.name }

// Done is closed by Destroy.
func (o *Owner) Done() <-chan struct{} { return o.done }

func (o *Owner) IsDestroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

func (o *Owner) OnDestroy(fn func()) func() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		fn()
		return func() {}
	}
	o.nextID++
	id := o.nextID
	o.observers = append(o.observers, ownerObserver{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, obs := range o.observers {
			if obs.id == id {
				o.observers = append(o.observers[:i], o.observers[i+1:]...)
				return
			}
		}
	}
}

// Destroy fires the teardown signal once. Later calls do nothing.
func (o *Owner) Destroy() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.destroyed = true
	close(o.done)
	observers := o.observers
	o.observers = nil
	o.mu.Unlock()

	for _, obs := range observers {
		obs.fn()
	}
}
