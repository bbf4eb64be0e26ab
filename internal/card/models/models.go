package models

import (
	"time"

	id "loyaltycore/pkg/domain"
)

// Tier labels a card's standing. Tier evaluation itself happens upstream;
// this core only stores the label.
type Tier string

const (
	TierStandard Tier = "STANDARD"
)

// LoyaltyCard holds the single authoritative point balance for an active
// enrollment. Version increases monotonically with every balance mutation and
// backs the optimistic concurrency check in the ledger.
type LoyaltyCard struct {
	ID           id.CardID
	EnrollmentID id.EnrollmentID
	Balance      int64
	Tier         Tier
	Version      int64
	Active       bool
	CreatedAt    time.Time
}

// Clone returns a copy so in-memory stores never leak shared pointers.
func (c *LoyaltyCard) Clone() *LoyaltyCard {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}
