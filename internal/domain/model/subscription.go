package model

import (
	"time"

	"ai-generation-broker/internal/domain"
)

// Subscription carries the caps balance for one payer (user or enterprise).
type Subscription struct {
	ID        string
	PayerID   string
	Balance   int64 // caps
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAfford reports whether the balance covers cost caps.
func (s *Subscription) CanAfford(cost int64) bool {
	return s.Balance >= cost
}

// Transaction records one caps debit. Exactly one is written per job that
// terminates with known usage.
type Transaction struct {
	ID             string // ULID, sortable by creation time
	SubscriptionID string
	JobID          string
	Amount         int64 // caps debited
	CreatedAt      time.Time
}

func NewTransaction(id, subscriptionID, jobID string, amount int64) (*Transaction, error) {
	if id == "" || subscriptionID == "" || jobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Transaction{
		ID:             id,
		SubscriptionID: subscriptionID,
		JobID:          jobID,
		Amount:         amount,
		CreatedAt:      time.Now(),
	}, nil
}
