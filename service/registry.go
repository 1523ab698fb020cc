package service

import (
	"fmt"
	"sort"
)

// Registry maps a security to the service running its book. It is built
// at startup and read-only afterwards.
type Registry struct {
	books map[string]*OrderService
}

func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*OrderService)}
}

func (r *Registry) Add(s *OrderService) error {
	if _, dup := r.books[s.Security()]; dup {
		return fmt.Errorf("book %s registered twice", s.Security())
	}
	r.books[s.Security()] = s
	return nil
}

func (r *Registry) Get(security string) (*OrderService, error) {
	s, ok := r.books[security]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSecurity, security)
	}
	return s, nil
}

// All returns the services sorted by security.
func (r *Registry) All() []*OrderService {
	out := make([]*OrderService, 0, len(r.books))
	for _, s := range r.books {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Security() < out[j].Security() })
	return out
}

func (r *Registry) Securities() []string {
	all := r.All()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.Security()
	}
	return out
}

func (r *Registry) StartAll() {
	for _, s := range r.All() {
		s.Start()
	}
}

func (r *Registry) StopAll() {
	for _, s := range r.All() {
		s.Stop()
	}
}
