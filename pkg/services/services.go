// Package services is the registry of optional services other plugins can
// provide to Spicord, looked up by a fixed tag.
package services

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a looked up record does not exist.
var ErrNotFound = errors.New("not found")

// Tag identifies the kind of a service.
type Tag int

const (
	// Linking services map players to Discord accounts.
	Linking Tag = iota + 1
)

func (t Tag) String() string {
	switch t {
	case Linking:
		return "linking"
	}
	return "unknown"
}

// Service is a service instance.
type Service interface {
	// ID identifies the implementation, e.g. "bbolt_linking".
	ID() string
}

// Manager holds at most one service per tag.
type Manager struct {
	mu       sync.RWMutex
	services map[Tag]Service
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		services: make(map[Tag]Service),
	}
}

// Register provides svc for tag. It reports false when svc is nil, does not
// implement the interface of tag or a service is already registered for tag.
func (m *Manager) Register(tag Tag, svc Service) bool {
	if svc == nil || !implements(tag, svc) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[tag]; ok {
		return false
	}
	m.services[tag] = svc
	return true
}

func implements(tag Tag, svc Service) bool {
	switch tag {
	case Linking:
		_, ok := svc.(LinkingService)
		return ok
	}
	return false
}

// IsRegistered reports whether a service is registered for tag.
func (m *Manager) IsRegistered(tag Tag) bool {
	_, ok := m.Get(tag)
	return ok
}

// Unregister removes the service registered for tag.
func (m *Manager) Unregister(tag Tag) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[tag]; !ok {
		return false
	}
	delete(m.services, tag)
	return true
}

// UnregisterService removes svc from every tag it is registered for.
func (m *Manager) UnregisterService(svc Service) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := false
	for tag, registered := range m.services {
		if registered == svc {
			delete(m.services, tag)
			removed = true
		}
	}
	return removed
}

// Get returns the service registered for tag.
func (m *Manager) Get(tag Tag) (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[tag]
	return svc, ok
}

// GetByID returns the registered service whose ID is id.
func (m *Manager) GetByID(id string) (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, svc := range m.services {
		if svc.ID() == id {
			return svc, true
		}
	}
	return nil, false
}

// Linking returns the registered linking service.
func (m *Manager) Linking() (LinkingService, bool) {
	svc, ok := m.Get(Linking)
	if !ok {
		return nil, false
	}
	return svc.(LinkingService), true
}

// Clear removes every service.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[Tag]Service)
}
