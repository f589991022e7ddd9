package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/optimosight/vto-gateway/internal/apikey/domain"
	"gorm.io/gorm"
)

// Repository wraps api_keys queries the resolver and key service need.
type Repository struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindActiveByHash returns the active, unexpired key matching the hash, or
// nil when no such key exists.
func (r *Repository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.APIKey, error) {
	var keys []domain.APIKey
	err := r.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true).
		Limit(1).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	key := keys[0]
	if key.Expired(now) {
		return nil, nil
	}
	return &key, nil
}

// FindActiveByOrg returns the organization's active key, nil when none.
func (r *Repository) FindActiveByOrg(ctx context.Context, orgID snowflake.ID) (*domain.APIKey, error) {
	var keys []domain.APIKey
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Order("created_at DESC").
		Limit(1).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

func (r *Repository) Create(ctx context.Context, key *domain.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

// DeactivateForOrg flips every active key of the organization to inactive.
func (r *Repository) DeactivateForOrg(ctx context.Context, orgID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Update("is_active", false).Error
}

// Deactivate flips a single key to inactive.
func (r *Repository) Deactivate(ctx context.Context, keyID snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", keyID).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}
