// Package system manages component lifecycles.
package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/pik-ry/laskutin/pkg/logger"
)

// Service represents a lifecycle-managed component. Application modules
// implement this interface so the manager can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for components with no lifecycle work.
type NoopService struct {
	ServiceName string
}

// Name implements Service.
func (n NoopService) Name() string { return n.ServiceName }

// Start implements Service.
func (n NoopService) Start(context.Context) error { return nil }

// Stop implements Service.
func (n NoopService) Stop(context.Context) error { return nil }

// Manager starts registered services in registration order and stops
// them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]bool
	started  int
	log      *logger.Logger
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{
		names: make(map[string]bool),
		log:   logger.NewDefault("system"),
	}
}

// Register adds a service. Names must be unique, and registration must
// happen before Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("nil service")
	}
	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service has no name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started > 0 {
		return fmt.Errorf("register %s: manager already started", name)
	}
	if m.names[name] {
		return fmt.Errorf("service %s already registered", name)
	}
	m.names[name] = true
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service in order. When one fails, the
// services started before it are stopped in reverse and the failure is
// returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx, i)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.log.WithField("service", svc.Name()).Info("service started")
	}
	m.started = len(m.services)
	return nil
}

// Stop stops the started services in reverse order. Every service gets
// its Stop call; the first error is returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.stopLocked(ctx, m.started)
	m.started = 0
	return err
}

func (m *Manager) stopLocked(ctx context.Context, n int) error {
	var firstErr error
	for i := n - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Warn("service stop failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
			continue
		}
		m.log.WithField("service", svc.Name()).Info("service stopped")
	}
	return firstErr
}
