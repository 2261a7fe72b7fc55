package model

import "time"

// APIKey is an issued client credential together with its quota state.
type APIKey struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"-"`
	Name          string     `json:"name"`
	Secret        string     `json:"key"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsed,omitempty"`
	UsageLimit    int        `json:"usageCount"`
	RemainingUses int        `json:"remainingUses"`
}

// Exhausted reports whether the key has no remaining uses.
func (k *APIKey) Exhausted() bool {
	return k.RemainingUses <= 0
}
