package surge

import (
	"sync"
)

// ServiceRouter resolves an upgrade request's target path to the
// WSHandler registered for it, letting a single Listener host several
// independent WebSocket services behind distinct resource paths instead
// of funneling every connection through one handler (spec §4.6,
// "service_handler").
//
// Registration and lookup are both guarded by a plain RWMutex: neither
// ever blocks on a handler callback or a socket operation, so there is
// nothing here a strand would buy beyond what the mutex already gives —
// Resolve takes the read lock just long enough to copy out a handler
// reference, and AddService/RemoveService take the write lock just long
// enough to mutate the map.
type ServiceRouter struct {
	mu       sync.RWMutex
	services map[string]WSHandler
}

// NewServiceRouter returns an empty router. e is accepted for symmetry
// with the framework's other constructors, which all take the Executor
// their session work runs on; ServiceRouter doesn't need one itself.
func NewServiceRouter(e *Executor) *ServiceRouter {
	return &ServiceRouter{
		services: make(map[string]WSHandler),
	}
}

// AddService registers handler under resource, replacing any handler
// already registered there.
func (r *ServiceRouter) AddService(resource string, handler WSHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[resource] = handler
}

// RemoveService unregisters the handler at resource. caller names the
// handler asking for the removal, or nil when the request does not come
// from a service. A service must not remove itself: RemoveService panics
// when caller is the very handler registered at resource, wherever the
// call is made from.
func (r *ServiceRouter) RemoveService(resource string, caller WSHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.services[resource]; ok && caller != nil && sameHandler(current, caller) {
		panic("surge: service must not remove itself from within its own callback")
	}
	delete(r.services, resource)
}

func sameHandler(a, b WSHandler) bool {
	return a == b
}

// Resolve looks up the handler registered for target. KindUnknownService
// is returned when nothing is registered there.
func (r *ServiceRouter) Resolve(target string) (WSHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.services[target]
	if !ok {
		return nil, NewError(KindUnknownService, "no service registered for "+target)
	}
	return handler, nil
}

// Count returns the number of currently registered services.
func (r *ServiceRouter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
