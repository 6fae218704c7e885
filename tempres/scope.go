package tempres

import (
	"errors"
	"sync"
)

// Scope tracks the resources one job allocates and releases all of them
// in reverse order of creation.
type Scope struct {
	manager *Manager

	mu        sync.Mutex
	resources []*Resource
}

// NewScope creates an empty scope backed by m.
func (m *Manager) NewScope() *Scope {
	return &Scope{manager: m}
}

// Acquire allocates a new path and tracks it.
func (s *Scope) Acquire(ext string) *Resource {
	return s.Track(s.manager.Acquire(ext))
}

// Track adds an externally acquired resource to the scope.
func (s *Scope) Track(r *Resource) *Resource {
	s.mu.Lock()
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	return r
}

// Paths returns the tracked paths in creation order.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, len(s.resources))
	for i, r := range s.resources {
		paths[i] = r.Path()
	}
	return paths
}

// Release removes every tracked resource, newest first. Every resource is
// attempted even if an earlier one fails; the failures are joined.
// Calling Release again retries only what failed.
func (s *Scope) Release() error {
	s.mu.Lock()
	resources := s.resources
	s.resources = nil
	s.mu.Unlock()

	var errs []error
	var failed []*Resource
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Release(); err != nil {
			errs = append(errs, err)
			failed = append(failed, resources[i])
		}
	}
	if len(failed) > 0 {
		s.mu.Lock()
		for i := len(failed) - 1; i >= 0; i-- {
			s.resources = append(s.resources, failed[i])
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
