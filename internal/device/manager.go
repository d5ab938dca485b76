package device

import "sync"

// Manager tracks whether the configured device backend is attached. At most
// one device is current at a time; services observe pairing changes through
// the change callback.
type Manager struct {
	mu       sync.RWMutex
	backend  Device
	attached bool
	onChange func(Device)
}

// NewManager creates a manager around the given backend. The backend starts
// detached.
func NewManager(backend Device) *Manager {
	return &Manager{backend: backend}
}

// SetChangeCallback registers the function called with the new current device
// (nil on detach) whenever pairing changes.
func (m *Manager) SetChangeCallback(cb func(Device)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = cb
}

// Connect attaches the backend and notifies observers.
func (m *Manager) Connect() Device {
	m.mu.Lock()
	m.attached = true
	dev := m.backend
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(dev)
	}
	return dev
}

// Disconnect detaches the device and notifies observers with nil.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.attached = false
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
}

// Current returns the attached device, or nil when detached.
func (m *Manager) Current() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.attached {
		return nil
	}
	return m.backend
}

// Connected reports whether a device is attached.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attached
}
