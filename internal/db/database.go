package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyhub/internal/apperr"
	"keyhub/internal/config"
	"keyhub/internal/keygen"
	"keyhub/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// KeyStore persists API keys. Every method except GetKeyBySecret is scoped by owner.
type KeyStore interface {
	CreateKey(ctx context.Context, ownerID, name string) (*model.APIKey, error)
	ListKeys(ctx context.Context, ownerID string) ([]model.APIKey, error)
	GetKey(ctx context.Context, id, ownerID string) (*model.APIKey, error)
	GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	RenameKey(ctx context.Context, id, ownerID, name string) (*model.APIKey, error)
	DeleteKey(ctx context.Context, id, ownerID string) (bool, error)
	ConsumeOneUse(ctx context.Context, id string) (bool, error)
}

// UsageLedger persists usage events.
type UsageLedger interface {
	AppendUsage(ctx context.Context, keyID string, responseTimeMs *int64, success bool) error
	CountUsage(ctx context.Context, keyID string) (int64, error)
	ListUsage(ctx context.Context) ([]model.UsageEvent, error)
	DeleteUsage(ctx context.Context, keyID string) error
	PurgeOrphanedUsage(ctx context.Context) (int64, error)
}

// Service is everything the rest of the application needs from the database.
type Service interface {
	KeyStore
	UsageLedger
	Ping(ctx context.Context) error
	Close() error
}

type apiKeyRow struct {
	ID            string          `gorm:"type:varchar(36);primaryKey"`
	OwnerID       string          `gorm:"type:varchar(255);index;not null"`
	Name          string          `gorm:"type:varchar(255);not null"`
	Secret        string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt     time.Time       `gorm:"index;not null"`
	LastUsedAt    *time.Time
	UsageLimit    int             `gorm:"not null"`
	RemainingUses int             `gorm:"not null;check:remaining_uses >= 0"`
	Usage         []usageEventRow `gorm:"foreignKey:KeyID;constraint:OnDelete:CASCADE"`
}

func (apiKeyRow) TableName() string { return "api_keys" }

func (r *apiKeyRow) toModel() *model.APIKey {
	return &model.APIKey{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Name:          r.Name,
		Secret:        r.Secret,
		CreatedAt:     r.CreatedAt,
		LastUsedAt:    r.LastUsedAt,
		UsageLimit:    r.UsageLimit,
		RemainingUses: r.RemainingUses,
	}
}

type usageEventRow struct {
	ID             uint      `gorm:"primaryKey"`
	KeyID          string    `gorm:"type:varchar(36);index;not null"`
	Timestamp      time.Time `gorm:"index;not null"`
	ResponseTimeMs *int64
	Success        bool `gorm:"not null"`
}

func (usageEventRow) TableName() string { return "usage_events" }

// Init initializes the database connection based on the provided configuration
// and migrates the schema.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// One connection serializes writers and keeps in-memory databases coherent.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&apiKeyRow{}, &usageEventRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// Option configures a Store.
type Option func(*Store)

// WithUsageLimit sets the quota assigned to newly created keys.
func WithUsageLimit(limit int) Option {
	return func(s *Store) {
		s.usageLimit = limit
	}
}

// WithGenerator sets the secret generator.
func WithGenerator(g *keygen.Generator) Option {
	return func(s *Store) {
		s.generator = g
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store implements Service on gorm.
type Store struct {
	db         *gorm.DB
	generator  *keygen.Generator
	usageLimit int
	now        func() time.Time
}

// NewService opens the configured database and returns a Store.
func NewService(cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(db, opts...), nil
}

func newStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		generator:  keygen.New(""),
		usageLimit: config.DefaultUsageLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDB returns the underlying gorm handle.
func (s *Store) GetDB() *gorm.DB {
	return s.db
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// CreateKey issues a new key for ownerID with the full usage limit.
func (s *Store) CreateKey(ctx context.Context, ownerID, name string) (*model.APIKey, error) {
	row := apiKeyRow{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Name:          name,
		Secret:        s.generator.Generate(),
		CreatedAt:     s.timestamp(),
		UsageLimit:    s.usageLimit,
		RemainingUses: s.usageLimit,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, apperr.Storage("create_key", row.ID, err)
	}
	return row.toModel(), nil
}

// ListKeys returns the owner's keys, newest first.
func (s *Store) ListKeys(ctx context.Context, ownerID string) ([]model.APIKey, error) {
	var rows []apiKeyRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("list_keys", "", err)
	}
	keys := make([]model.APIKey, 0, len(rows))
	for i := range rows {
		keys = append(keys, *rows[i].toModel())
	}
	return keys, nil
}

// GetKey returns the key with id if ownerID owns it.
func (s *Store) GetKey(ctx context.Context, id, ownerID string) (*model.APIKey, error) {
	var row apiKeyRow
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Take(&row).Error
	if err != nil {
		return nil, lookupError("get_key", id, err)
	}
	return row.toModel(), nil
}

// GetKeyBySecret resolves a presented secret regardless of owner.
func (s *Store) GetKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	var row apiKeyRow
	err := s.db.WithContext(ctx).Where("secret = ?", secret).Take(&row).Error
	if err != nil {
		return nil, lookupError("get_key_by_secret", "", err)
	}
	return row.toModel(), nil
}

// RenameKey changes the name of an owned key and returns the updated record.
func (s *Store) RenameKey(ctx context.Context, id, ownerID, name string) (*model.APIKey, error) {
	var row apiKeyRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).Take(&row).Error; err != nil {
			return err
		}
		// MySQL reports zero affected rows for an unchanged value, so the
		// lookup above is the existence check.
		if err := tx.Model(&apiKeyRow{}).Where("id = ?", id).Update("name", name).Error; err != nil {
			return err
		}
		row.Name = name
		return nil
	})
	if err != nil {
		return nil, lookupError("rename_key", id, err)
	}
	return row.toModel(), nil
}

// DeleteKey removes an owned key together with its usage events. It returns
// false when the key does not exist or belongs to someone else.
func (s *Store) DeleteKey(ctx context.Context, id, ownerID string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&apiKeyRow{}).Where("id = ? AND owner_id = ?", id, ownerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if err := tx.Where("key_id = ?", id).Delete(&usageEventRow{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&apiKeyRow{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, apperr.Storage("delete_key", id, err)
	}
	return deleted, nil
}

// ConsumeOneUse atomically decrements the remaining uses of a key and stamps
// its last use. It returns false when nothing was left to consume.
func (s *Store) ConsumeOneUse(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&apiKeyRow{}).
		Where("id = ? AND remaining_uses > 0", id).
		UpdateColumns(map[string]interface{}{
			"remaining_uses": gorm.Expr("remaining_uses - 1"),
			"last_used_at":   s.timestamp(),
		})
	if result.Error != nil {
		return false, apperr.Storage("consume_one_use", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AppendUsage records one usage event for keyID.
func (s *Store) AppendUsage(ctx context.Context, keyID string, responseTimeMs *int64, success bool) error {
	row := usageEventRow{
		KeyID:          keyID,
		Timestamp:      s.timestamp(),
		ResponseTimeMs: responseTimeMs,
		Success:        success,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperr.Storage("append_usage", keyID, err)
	}
	return nil
}

// CountUsage returns the exact number of events recorded for keyID.
func (s *Store) CountUsage(ctx context.Context, keyID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&usageEventRow{}).Where("key_id = ?", keyID).Count(&count).Error; err != nil {
		return 0, apperr.Storage("count_usage", keyID, err)
	}
	return count, nil
}

// ListUsage returns every usage event, oldest first.
func (s *Store) ListUsage(ctx context.Context) ([]model.UsageEvent, error) {
	var rows []usageEventRow
	if err := s.db.WithContext(ctx).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list_usage", "", err)
	}
	events := make([]model.UsageEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, model.UsageEvent{
			ID:             r.ID,
			KeyID:          r.KeyID,
			Timestamp:      r.Timestamp,
			ResponseTimeMs: r.ResponseTimeMs,
			Success:        r.Success,
		})
	}
	return events, nil
}

// DeleteUsage removes every event recorded for keyID.
func (s *Store) DeleteUsage(ctx context.Context, keyID string) error {
	if err := s.db.WithContext(ctx).Where("key_id = ?", keyID).Delete(&usageEventRow{}).Error; err != nil {
		return apperr.Storage("delete_usage", keyID, err)
	}
	return nil
}

// PurgeOrphanedUsage deletes events whose key no longer exists and returns how
// many were removed.
func (s *Store) PurgeOrphanedUsage(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)
	result := db.
		Where("key_id NOT IN (?)", db.Model(&apiKeyRow{}).Select("id")).
		Delete(&usageEventRow{})
	if result.Error != nil {
		return 0, apperr.Storage("purge_orphaned_usage", "", result.Error)
	}
	return result.RowsAffected, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Storage("ping", "", err)
	}
	return apperr.Storage("ping", "", sqlDB.PingContext(ctx))
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func lookupError(op, keyID string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return apperr.Storage(op, keyID, err)
}
