package keys

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"keyhub/internal/apperr"
	"keyhub/internal/db"
	"keyhub/internal/keygen"
	"keyhub/internal/model"
)

// View is a key as shown on the dashboard: the secret masked, with the number
// of recorded usage events alongside the quota counters.
type View struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Key           string     `json:"key"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      *time.Time `json:"lastUsed"`
	UsageCount    int        `json:"usageCount"`
	RemainingUses int        `json:"remainingUses"`
	ActualUsage   int64      `json:"actualUsage"`
}

// Revealed is the one response that carries the full secret of an existing key.
type Revealed struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Store is what the service needs from persistence.
type Store interface {
	db.KeyStore
	CountUsage(ctx context.Context, keyID string) (int64, error)
}

// Service implements the owner-facing key lifecycle.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a key Service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "keys"),
	}
}

// CreateKey issues a key and returns it with its secret unmasked. This is the
// only response besides RevealKey that carries the full secret.
func (s *Service) CreateKey(ctx context.Context, ownerID, name string) (*model.APIKey, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	key, err := s.store.CreateKey(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("API key created", "key_id", key.ID, "owner_id", ownerID)
	return key, nil
}

// ListKeys returns the owner's keys, newest first, with masked secrets.
func (s *Service) ListKeys(ctx context.Context, ownerID string) ([]View, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	list, err := s.store.ListKeys(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(list))
	for i := range list {
		views = append(views, s.view(ctx, &list[i]))
	}
	return views, nil
}

// GetKey returns one owned key with its secret masked.
func (s *Service) GetKey(ctx context.Context, id, ownerID string) (*View, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	key, err := s.store.GetKey(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, key)
	return &v, nil
}

// RevealKey returns the full secret of an owned key.
func (s *Service) RevealKey(ctx context.Context, id, ownerID string) (*Revealed, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	key, err := s.store.GetKey(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("API key revealed", "key_id", key.ID, "owner_id", ownerID)
	return &Revealed{ID: key.ID, Key: key.Secret}, nil
}

// RenameKey changes the name of an owned key.
func (s *Service) RenameKey(ctx context.Context, id, ownerID, name string) (*View, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthorized
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	key, err := s.store.RenameKey(ctx, id, ownerID, name)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, key)
	return &v, nil
}

// DeleteKey removes an owned key and its usage history.
func (s *Service) DeleteKey(ctx context.Context, id, ownerID string) error {
	if ownerID == "" {
		return apperr.ErrUnauthorized
	}
	deleted, err := s.store.DeleteKey(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.ErrNotFound
	}
	s.logger.Info("API key deleted", "key_id", id, "owner_id", ownerID)
	return nil
}

func (s *Service) view(ctx context.Context, key *model.APIKey) View {
	count, err := s.store.CountUsage(ctx, key.ID)
	if err != nil {
		s.logger.Warn("Failed to count usage, reporting zero", "key_id", key.ID, "error", err)
		count = 0
	}
	return View{
		ID:            key.ID,
		Name:          key.Name,
		Key:           keygen.Mask(key.Secret),
		CreatedAt:     key.CreatedAt,
		LastUsed:      key.LastUsedAt,
		UsageCount:    key.UsageLimit,
		RemainingUses: key.RemainingUses,
		ActualUsage:   count,
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name", "name is required")
	}
	return name, nil
}
