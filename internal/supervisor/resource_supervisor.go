// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/palisade/internal/logging"
)

// Errors for ResourceSupervisor
var (
	ErrResourceAlreadyExists = errors.New("resource already exists in supervisor")
	ErrResourceNotRunning    = errors.New("resource is not running")
	ErrNilSupervisorTree     = errors.New("supervisor tree cannot be nil")
)

// ResourceStatus describes one supervised resource.
type ResourceStatus struct {
	Name       string    `json:"name"`
	Generation uint64    `json:"generation"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at"`
}

type managedService struct {
	token      suture.ServiceToken
	service    suture.Service
	generation uint64
	startedAt  time.Time
}

// ResourceSupervisor runs services that belong to one configuration
// generation, such as directory connection pools. When a new generation is
// applied, the previous generation's service is stopped before its
// replacement starts.
//
// All operations are safe for concurrent use.
type ResourceSupervisor struct {
	tree     *SupervisorTree
	services map[string]*managedService
	mu       sync.RWMutex
}

// NewResourceSupervisor creates a supervisor that adds its services to the
// tree's control layer.
func NewResourceSupervisor(tree *SupervisorTree) (*ResourceSupervisor, error) {
	if tree == nil {
		return nil, ErrNilSupervisorTree
	}
	return &ResourceSupervisor{
		tree:     tree,
		services: make(map[string]*managedService),
	}, nil
}

// Add starts svc under name. It returns ErrResourceAlreadyExists if name is
// already running.
func (s *ResourceSupervisor) Add(name string, generation uint64, svc suture.Service) error {
	if svc == nil {
		return errors.New("service cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[name]; exists {
		return ErrResourceAlreadyExists
	}
	s.addLocked(name, generation, svc)
	return nil
}

func (s *ResourceSupervisor) addLocked(name string, generation uint64, svc suture.Service) {
	s.services[name] = &managedService{
		token:      s.tree.AddControlService(svc),
		service:    svc,
		generation: generation,
		startedAt:  time.Now(),
	}
	logging.Info().
		Str("resource", name).
		Uint64("generation", generation).
		Msg("Resource added to supervisor")
}

// Remove stops the named resource and waits for it to exit.
func (s *ResourceSupervisor) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *ResourceSupervisor) removeLocked(name string) error {
	managed, exists := s.services[name]
	if !exists {
		return ErrResourceNotRunning
	}
	if err := s.tree.RemoveControlServiceAndWait(managed.token, s.tree.config.ShutdownTimeout); err != nil {
		return fmt.Errorf("failed to remove %s from supervisor: %w", name, err)
	}
	delete(s.services, name)

	logging.Info().
		Str("resource", name).
		Uint64("generation", managed.generation).
		Msg("Resource removed from supervisor")
	return nil
}

// Replace stops the current service under name, if any, then starts svc.
func (s *ResourceSupervisor) Replace(name string, generation uint64, svc suture.Service) error {
	if svc == nil {
		return errors.New("service cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[name]; exists {
		if err := s.removeLocked(name); err != nil {
			return fmt.Errorf("failed to remove old service: %w", err)
		}
	}
	s.addLocked(name, generation, svc)
	return nil
}

// Sync makes desired the complete set of resources for generation. Names
// not in desired are stopped; every name in desired is replaced.
func (s *ResourceSupervisor) Sync(generation uint64, desired map[string]suture.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name := range s.services {
		if _, keep := desired[name]; !keep {
			if err := s.removeLocked(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, name := range sortedNames(desired) {
		if _, exists := s.services[name]; exists {
			if err := s.removeLocked(name); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		s.addLocked(name, generation, desired[name])
	}
	return errors.Join(errs...)
}

// Status returns the status of the named resource.
func (s *ResourceSupervisor) Status(name string) (*ResourceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	managed, exists := s.services[name]
	if !exists {
		return nil, ErrResourceNotRunning
	}
	status := managed.status(name)
	return &status, nil
}

// Statuses returns the status of every resource, sorted by name.
func (s *ResourceSupervisor) Statuses() []ResourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]ResourceStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, s.services[name].status(name))
	}
	return statuses
}

// IsRunning reports whether name is supervised.
func (s *ResourceSupervisor) IsRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.services[name]
	return exists
}

// StopAll stops every resource.
func (s *ResourceSupervisor) StopAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stopErrors []error
	for name := range s.services {
		if err := s.removeLocked(name); err != nil {
			logging.Warn().Str("resource", name).Err(err).Msg("Failed to stop resource")
			stopErrors = append(stopErrors, err)
		}
	}
	if len(stopErrors) > 0 {
		return fmt.Errorf("failed to stop %d resources: %w", len(stopErrors), errors.Join(stopErrors...))
	}
	return nil
}

func (m *managedService) status(name string) ResourceStatus {
	return ResourceStatus{
		Name:       name,
		Generation: m.generation,
		Running:    true,
		StartedAt:  m.startedAt,
	}
}

func sortedNames(m map[string]suture.Service) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
