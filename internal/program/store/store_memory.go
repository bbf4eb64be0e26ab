package store

import (
	"context"
	"sort"
	"sync"

	"loyaltycore/internal/program/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// Memory is an in-memory program store for unit tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	programs map[id.ProgramID]*models.Program
}

// NewMemory creates an empty in-memory program store.
func NewMemory() *Memory {
	return &Memory{programs: make(map[id.ProgramID]*models.Program)}
}

func (s *Memory) Create(_ context.Context, program *models.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.programs[program.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.programs[program.ID] = program.Clone()
	return nil
}

func (s *Memory) Get(_ context.Context, programID id.ProgramID) (*models.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	program, ok := s.programs[programID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return program.Clone(), nil
}

func (s *Memory) ListByBusiness(_ context.Context, businessID id.BusinessID) ([]*models.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Program
	for _, program := range s.programs {
		if program.BusinessID == businessID {
			out = append(out, program.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
