package quota

import (
	"context"
	"log/slog"
	"time"

	"keyhub/internal/apperr"
	"keyhub/internal/model"
)

// KeyStore is the subset of the key store the guard reads and consumes from.
type KeyStore interface {
	GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	GetKey(ctx context.Context, id, ownerID string) (*model.APIKey, error)
	ConsumeOneUse(ctx context.Context, id string) (bool, error)
}

// Recorder receives one usage event per guarded call.
type Recorder interface {
	Record(keyID string, responseTimeMs *int64, success bool)
}

// Grant is the outcome of a successful authorization. RemainingUses already
// accounts for the use consumed by the authorization itself.
type Grant struct {
	KeyID         string
	OwnerID       string
	RemainingUses int
	UsageLimit    int
}

// Guard admits calls made with an API key and charges them against its quota.
type Guard struct {
	keys     KeyStore
	recorder Recorder
	logger   *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(keys KeyStore, recorder Recorder, logger *slog.Logger) *Guard {
	return &Guard{
		keys:     keys,
		recorder: recorder,
		logger:   logger.With("component", "quota"),
	}
}

// Authorize resolves secret, re-reads the key under its owner, checks the
// remaining quota and consumes one use.
func (g *Guard) Authorize(ctx context.Context, secret string) (*Grant, error) {
	if secret == "" {
		return nil, apperr.ErrUnauthorized
	}

	resolved, err := g.keys.GetKeyBySecret(ctx, secret)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}

	key, err := g.keys.GetKey(ctx, resolved.ID, resolved.OwnerID)
	if err != nil {
		if apperr.IsNotFound(err) {
			// Deleted between the two reads.
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}

	if key.Secret != secret {
		g.logger.Error("API key secret mismatch on refresh", "key_id", key.ID, "critical", true)
		return nil, apperr.ErrIntegrity
	}

	if key.Exhausted() {
		return nil, &apperr.QuotaExceededError{Remaining: key.RemainingUses, Limit: key.UsageLimit}
	}

	ok, err := g.keys.ConsumeOneUse(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another caller took the last use after the check above.
		return nil, &apperr.QuotaExceededError{Remaining: 0, Limit: key.UsageLimit}
	}

	return &Grant{
		KeyID:         key.ID,
		OwnerID:       key.OwnerID,
		RemainingUses: key.RemainingUses - 1,
		UsageLimit:    key.UsageLimit,
	}, nil
}

// Run authorizes secret and then calls op. Exactly one usage event is recorded
// for every call that got past authorization, including one where op panics;
// the panic is re-raised after recording.
func (g *Guard) Run(ctx context.Context, secret string, op func(ctx context.Context, grant *Grant) error) error {
	grant, err := g.Authorize(ctx, secret)
	if err != nil {
		return err
	}

	start := time.Now()
	succeeded := false
	defer func() {
		elapsed := time.Since(start).Milliseconds()
		g.recorder.Record(grant.KeyID, &elapsed, succeeded)
	}()

	err = op(ctx, grant)
	succeeded = err == nil
	return err
}
