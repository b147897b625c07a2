package storage

import (
	"fmt"
	"sync"

	"github.com/eugenenazirov/buildconf/internal/buildconfig"
)

// ProjectStore provides access to the project the resolver builds from.
type ProjectStore interface {
	GetProject() (buildconfig.Project, error)
	SetProject(project buildconfig.Project) error
}

// MemoryStore keeps the project in-memory and guards access with a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	project buildconfig.Project
}

// NewMemoryStore initialises storage with a copy of project.
func NewMemoryStore(project buildconfig.Project) (*MemoryStore, error) {
	s := &MemoryStore{}
	if err := s.SetProject(project); err != nil {
		return nil, err
	}
	return s, nil
}

// GetProject returns a defensive copy of the current project.
func (s *MemoryStore) GetProject() (buildconfig.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.project.Clone(), nil
}

// SetProject validates and stores a copy of project.
func (s *MemoryStore) SetProject(project buildconfig.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("set project: %w", err)
	}

	s.mu.Lock()
	s.project = project.Clone()
	s.mu.Unlock()

	return nil
}
