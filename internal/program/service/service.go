// Package service implements the program registry. Programs are
// near-immutable reference data; the interesting behavior lives in the
// enrollment workflow and the ledger.
package service

import (
	"context"
	"errors"
	"strings"

	"loyaltycore/internal/program/models"
	"loyaltycore/internal/program/store"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/requestcontext"
)

// Service is the program registry.
type Service struct {
	store store.Store
}

// New constructs the program registry service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Create registers a new loyalty program for a business.
func (s *Service) Create(ctx context.Context, businessID id.BusinessID, name string) (*models.Program, error) {
	if businessID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "business id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "program name is required")
	}

	program := &models.Program{
		ID:         id.NewProgramID(),
		BusinessID: businessID,
		Name:       name,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, program); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create program")
	}
	return program, nil
}

// Get returns the program.
func (s *Service) Get(ctx context.Context, programID id.ProgramID) (*models.Program, error) {
	program, err := s.store.Get(ctx, programID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get program")
	}
	return program, nil
}

// Exists reports whether the program is registered.
func (s *Service) Exists(ctx context.Context, programID id.ProgramID) (bool, error) {
	_, err := s.store.Get(ctx, programID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByBusiness returns a business's programs.
func (s *Service) ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*models.Program, error) {
	programs, err := s.store.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list programs")
	}
	return programs, nil
}
