package host

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Host for tests and for running the daemon without
// an audio backend. Pulls are driven explicitly via Pull.
type Mock struct {
	mu      sync.Mutex
	devices map[string]PullFunc
	nextErr error
}

// NewMock creates an empty mock host.
func NewMock() *Mock {
	return &Mock{devices: make(map[string]PullFunc)}
}

type mockHandle string

func (h mockHandle) Name() string { return string(h) }

// FailNext makes the next Register call return err.
func (m *Mock) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

func (m *Mock) Register(_ context.Context, desc DeviceDesc, pull PullFunc) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		return nil, err
	}
	if _, ok := m.devices[desc.Name]; ok {
		return nil, fmt.Errorf("mock host: device %q already registered", desc.Name)
	}
	m.devices[desc.Name] = pull
	return mockHandle(desc.Name), nil
}

func (m *Mock) Unregister(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[h.Name()]; !ok {
		return fmt.Errorf("mock host: device %q not registered", h.Name())
	}
	delete(m.devices, h.Name())
	return nil
}

// Registered returns the names of currently registered devices.
func (m *Mock) Registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	return names
}

// Pull invokes the registered pull callback for name, requesting n frames.
// Returns nil if the device is not registered.
func (m *Mock) Pull(name string, n int) []int16 {
	m.mu.Lock()
	pull, ok := m.devices[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	dst := make([]int16, n)
	pull(dst)
	return dst
}
