package store

import (
	"context"

	"loyaltycore/internal/program/models"
	id "loyaltycore/pkg/domain"
)

// Store persists loyalty programs.
type Store interface {
	// Create inserts a new program.
	Create(ctx context.Context, program *models.Program) error

	// Get returns the program or sentinel.ErrNotFound.
	Get(ctx context.Context, programID id.ProgramID) (*models.Program, error)

	// ListByBusiness returns the business's programs, oldest first.
	ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*models.Program, error)
}
