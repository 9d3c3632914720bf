package manager

import "sync"

// Singleton owns at most one DatafileManager at a time. Start-up code that
// wants explicit ownership can hold its own; the package-level functions use a
// shared default.
type Singleton struct {
	manager *DatafileManager
	mu      sync.RWMutex
}

func NewSingleton() *Singleton {
	return &Singleton{}
}

// Configure builds a new DatafileManager from options. A previously
// configured manager is closed and replaced.
func (s *Singleton) Configure(options Options) *DatafileManager {
	m := NewDatafileManager(options)

	s.mu.Lock()
	previous := s.manager
	s.manager = m
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return m
}

func (s *Singleton) GetClient() (*DatafileManager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return nil, &ConfigurationError{Method: "GetClient"}
	}
	return s.manager, nil
}

func (s *Singleton) OnReady() (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return nil, &ConfigurationError{Method: "OnReady"}
	}
	return s.manager.OnReady(), nil
}

func (s *Singleton) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager != nil
}

// Reset closes and drops the held manager. Intended for tests.
func (s *Singleton) Reset() {
	s.mu.Lock()
	previous := s.manager
	s.manager = nil
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
}
