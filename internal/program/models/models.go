package models

import (
	"time"

	id "loyaltycore/pkg/domain"
)

// Program is a business's loyalty program. Enrollments and cards hang off a
// program; the program itself carries no balance state.
type Program struct {
	ID         id.ProgramID
	BusinessID id.BusinessID
	Name       string
	CreatedAt  time.Time
}

// Clone returns a copy so in-memory stores never leak shared pointers.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}
