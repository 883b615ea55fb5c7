package pipeline

import "sync"

// Registry holds the supervisors of a process by pipeline name.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]*Supervisor
}

// NewRegistry creates a registry of the given supervisors, keeping their
// order for listing.
func NewRegistry(supervisors ...*Supervisor) *Registry {
	r := &Registry{byKey: make(map[string]*Supervisor)}
	for _, s := range supervisors {
		r.Add(s)
	}
	return r
}

// Add registers s, replacing a supervisor with the same name.
func (r *Registry) Add(s *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.byKey[s.Name()] = s
}

// Get returns the supervisor of the named pipeline.
func (r *Registry) Get(name string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[name]
	return s, ok
}

// All returns every supervisor in registration order.
func (r *Registry) All() []*Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Supervisor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// StartAll starts every pipeline that is not running.
func (r *Registry) StartAll() {
	for _, s := range r.All() {
		s.Start()
	}
}

// StopAll stops every pipeline and waits for all of them.
func (r *Registry) StopAll() {
	var wg sync.WaitGroup
	for _, s := range r.All() {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}
