package twist_controller

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultRegistry shares controllers between the resources of one module process: the
// twist arm registers its controller and the diagnostics sensor acquires it by name.
var DefaultRegistry = NewControllerRegistry()

type ControllerEntry struct {
	controller *TwistController
	refCount   int64 // Atomic reference counter
	mu         sync.RWMutex
}

type ControllerRegistry struct {
	entries map[string]*ControllerEntry // controller name -> entry
	mu      sync.RWMutex
}

func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{
		entries: make(map[string]*ControllerEntry),
	}
}

// Register adds a controller under its name with a reference count of one.
func (r *ControllerRegistry) Register(controller *TwistController) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[controller.Name()]; exists {
		currentRefCount := atomic.LoadInt64(&entry.refCount)
		return fmt.Errorf("conflict: controller %s already registered (refCount: %d)", controller.Name(), currentRefCount)
	}

	entry := &ControllerEntry{controller: controller}
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[controller.Name()] = entry
	return nil
}

// Acquire returns the named controller and takes a reference on it.
func (r *ControllerRegistry) Acquire(name string) (*TwistController, error) {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("controller %s not available", name)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.controller == nil {
		return nil, fmt.Errorf("controller %s is closing", name)
	}
	atomic.AddInt64(&entry.refCount, 1)
	return entry.controller, nil
}

// Release drops a reference; the last release stops the controller and forgets it.
func (r *ControllerRegistry) Release(name string) {
	r.release(name, nil)
}

// ReleaseController drops a reference taken on controller. It does nothing once controller
// has been force closed, even if another controller now uses the same name.
func (r *ControllerRegistry) ReleaseController(controller *TwistController) {
	r.release(controller.Name(), controller)
}

func (r *ControllerRegistry) release(name string, expected *TwistController) {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if expected != nil && entry.controller != expected {
		return
	}
	currentRefCount := atomic.AddInt64(&entry.refCount, -1)
	if currentRefCount <= 0 {
		if entry.controller != nil {
			entry.controller.Close()
		}

		r.mu.Lock()
		if r.entries[name] == entry {
			delete(r.entries, name)
		}
		r.mu.Unlock()

		entry.controller = nil
		atomic.StoreInt64(&entry.refCount, 0)
	}
}

// ForceClose stops and forgets the named controller regardless of outstanding references.
func (r *ControllerRegistry) ForceClose(name string) {
	r.mu.Lock()
	entry, exists := r.entries[name]
	if exists {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.controller != nil {
		entry.controller.Close()
		entry.controller = nil
	}
	atomic.StoreInt64(&entry.refCount, 0)
}

// GetControllerStatus returns the reference count, whether a controller is present, and a summary.
func (r *ControllerRegistry) GetControllerStatus(name string) (int64, bool, string) {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return 0, false, ""
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	currentRefCount := atomic.LoadInt64(&entry.refCount)
	hasController := entry.controller != nil
	summary := ""
	if entry.controller != nil {
		status := entry.controller.Status()
		summary = fmt.Sprintf("Damping: %s, Running: %v, Cycles: %d, Failures: %d",
			entry.controller.Solver().Damping().Method(), status.Running, status.Cycles, status.Failures)
	}

	return currentRefCount, hasController, summary
}
