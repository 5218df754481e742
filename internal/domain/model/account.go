package model

import "time"

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusRelax    AccountStatus = "relax" // cooling down after quota pressure
	AccountStatusBanned   AccountStatus = "banned"
	AccountStatusInactive AccountStatus = "inactive"
)

// PooledAccount is a rate-limited upstream credential shared across jobs.
// ActiveGenerationCount is mutated concurrently from multiple processes and
// must only be adjusted through the repository's atomic counter operations.
type PooledAccount struct {
	ID                    string
	ProviderName          string
	Token                 string // upstream credential, encrypted at rest
	Status                AccountStatus
	ActiveGenerationCount int
	UsedCount             int64
	QueueID               string // selection group for round-robin / priority
	MaxConcurrent         int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Available reports whether the account can accept one more generation.
func (a *PooledAccount) Available() bool {
	if a.Status != AccountStatusActive {
		return false
	}
	return a.MaxConcurrent <= 0 || a.ActiveGenerationCount < a.MaxConcurrent
}
