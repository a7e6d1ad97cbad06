package session

import "sync"

// Sandbox is the live HTML preview slot. The session writes to it when the
// model calls a sandbox tool; the HTTP /sandbox handler reads from it.
type Sandbox struct {
	mu   sync.RWMutex
	html string
}

// NewSandbox returns an empty sandbox slot.
func NewSandbox() *Sandbox {
	return &Sandbox{}
}

// Set replaces the sandbox content.
func (s *Sandbox) Set(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = html
}

// Get returns the current content, or "" when nothing has been rendered.
func (s *Sandbox) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.html
}

// Live reports whether a preview has ever been rendered.
func (s *Sandbox) Live() bool {
	return s.Get() != ""
}
