package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/threadline/internal/models"
	"github.com/lalith-99/threadline/internal/repository"
	"go.uber.org/zap"
)

// Stats receives hit/miss counts. *observ.Metrics satisfies it.
type Stats interface {
	CacheHit(entity string)
	CacheMiss(entity string)
}

// UserRepository serves GetByID from redis and falls back to the wrapped
// repository. Redis errors are logged and treated as misses so an
// unavailable cache never fails a request.
//
// Entries are only bounded by the cache TTL in two cases: a user deleted
// outside this service keeps resolving until its entry expires, and a miss
// that read the row before a concurrent UpdatePreferences can write the old
// copy back after the invalidation. Keep CACHE_TTL short where either matters.
type UserRepository struct {
	next   repository.UserRepository
	cache  *Cache
	stats  Stats
	logger *zap.Logger
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository(next repository.UserRepository, cache *Cache, stats Stats, logger *zap.Logger) *UserRepository {
	return &UserRepository{next: next, cache: cache, stats: stats, logger: logger}
}

// cachedUser keeps the password hash, which models.User hides from JSON.
type cachedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func (r *UserRepository) Create(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	return r.next.Create(ctx, name, email, passwordHash)
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	key := Keys.User(id)

	var entry cachedUser
	found, err := r.cache.GetJSON(ctx, key, &entry)
	if err != nil {
		r.logger.Warn("user cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		r.stats.CacheHit("user")
		u := entry.User
		u.PasswordHash = entry.PasswordHash
		return &u, nil
	}
	r.stats.CacheMiss("user")

	u, err := r.next.GetByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}

	if err := r.cache.SetJSON(ctx, key, cachedUser{User: *u, PasswordHash: u.PasswordHash}); err != nil {
		r.logger.Warn("user cache write failed", zap.String("key", key), zap.Error(err))
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.next.GetByEmail(ctx, email)
}

// UpdatePreferences writes through and drops the cached copy.
func (r *UserRepository) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs models.UserPreferences) (*models.User, error) {
	u, err := r.next.UpdatePreferences(ctx, id, prefs)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return u, nil
}

func (r *UserRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if err := r.cache.Delete(ctx, Keys.User(id)); err != nil {
		r.logger.Warn("user cache invalidate failed", zap.Stringer("user_id", id), zap.Error(err))
	}
}
