package mocks

import (
	"sync"
)

// MockRedirectRules is a mock of the redirect rule installer used by the
// service and the undo-redirect command.
//
// It allows tests to provide custom behavior through function fields. If a
// function field is nil, the call succeeds. It is safe for concurrent use.
type MockRedirectRules struct {
	// EnableFunc is called by Enable if not nil
	EnableFunc func() error

	// DisableFunc is called by Disable if not nil
	DisableFunc func() error

	mu           sync.Mutex
	enableCalls  int
	disableCalls int
	enabled      bool
}

// Enable installs the rules.
func (m *MockRedirectRules) Enable() error {
	m.mu.Lock()
	m.enableCalls++
	fn := m.EnableFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	return nil
}

// Disable removes the rules.
func (m *MockRedirectRules) Disable() error {
	m.mu.Lock()
	m.disableCalls++
	fn := m.DisableFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	return nil
}

// Calls returns how many times Enable and Disable were called.
func (m *MockRedirectRules) Calls() (enable, disable int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enableCalls, m.disableCalls
}

// Enabled reports whether the last successful call was Enable.
func (m *MockRedirectRules) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// MockLinks is a set of present network interfaces that tests can change
// while the code under test polls it.
type MockLinks struct {
	mu    sync.Mutex
	links map[string]bool
}

// NewMockLinks creates a link set holding names.
func NewMockLinks(names ...string) *MockLinks {
	m := &MockLinks{links: make(map[string]bool)}
	for _, name := range names {
		m.links[name] = true
	}
	return m
}

// Exists reports whether the link is present. It matches
// networking.LinkExists.
func (m *MockLinks) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[name]
}

// Set adds or removes a link.
func (m *MockLinks) Set(name string, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if present {
		m.links[name] = true
	} else {
		delete(m.links, name)
	}
}
