package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/model"
	"CloudKeep/utils"

	"gorm.io/gorm"
)

// QuotaLedger owns the per-user byte counter. Live and trashed-but-
// recoverable bytes both count against the limit; the counter only drops
// when a file is purged. All mutations for one user are serialized through
// a per-user mutex plus the row update itself, so concurrent uploads,
// restores and purges cannot lose updates, and the reserve path cannot
// double-admit past the limit.
type QuotaLedger struct {
	db      *gorm.DB
	cache   utils.Cache
	userTTL time.Duration
	locks   sync.Map // userID -> *sync.Mutex
}

// NewQuotaLedger builds a ledger over the user table.
func NewQuotaLedger(db *gorm.DB, cache utils.Cache, userTTL time.Duration) *QuotaLedger {
	return &QuotaLedger{db: db, cache: cache, userTTL: userTTL}
}

func (l *QuotaLedger) userLock(userID uint64) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (l *QuotaLedger) loadUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (l *QuotaLedger) invalidateUserInfo(ctx context.Context, userID uint64) {
	key := utils.BuildCacheKey(utils.CacheKeyUserInfo, userID)
	if err := l.cache.Delete(ctx, key); err != nil {
		log.Printf("quota: invalidate user info cache failed: %v", err)
	}
}

// InvalidateStatus drops the cached quota projection. Used after counter
// mutations applied outside the ledger (the transactional purge path).
func (l *QuotaLedger) InvalidateStatus(ctx context.Context, userID uint64) {
	l.invalidateUserInfo(ctx, userID)
}

// Increase adds bytes to the counter. No upper-bound check here; upload and
// restore admission go through Reserve.
func (l *QuotaLedger) Increase(ctx context.Context, userID uint64, bytes int64) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return l.increaseLocked(ctx, userID, bytes)
}

func (l *QuotaLedger) increaseLocked(ctx context.Context, userID uint64, bytes int64) error {
	result := l.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("quota_used", gorm.Expr("quota_used + ?", bytes))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	l.invalidateUserInfo(ctx, userID)
	return nil
}

// Decrease subtracts bytes from the counter, clamped at zero. A clamp means
// accounting drifted somewhere earlier; it is corrected silently but logged.
func (l *QuotaLedger) Decrease(ctx context.Context, userID uint64, bytes int64) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	next := user.QuotaUsed - bytes
	if next < 0 {
		log.Printf("quota: counter clamp for user %d (used=%d, decrease=%d)", userID, user.QuotaUsed, bytes)
		next = 0
	}
	result := l.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("quota_used", next)
	if result.Error != nil {
		return result.Error
	}
	l.invalidateUserInfo(ctx, userID)
	return nil
}

// Headroom returns limit minus counter for the user.
func (l *QuotaLedger) Headroom(ctx context.Context, userID uint64) (int64, error) {
	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	headroom := user.QuotaLimit - user.QuotaUsed
	if headroom < 0 {
		headroom = 0
	}
	return headroom, nil
}

// Reserve is the check-then-act admission point shared by upload and
// restore: it verifies headroom and increases the counter under the same
// per-user lock, so two concurrent admissions cannot both pass a check only
// one can satisfy.
func (l *QuotaLedger) Reserve(ctx context.Context, userID uint64, bytes int64) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.QuotaLimit-user.QuotaUsed < bytes {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrQuotaExceeded, bytes, user.QuotaLimit-user.QuotaUsed)
	}
	return l.increaseLocked(ctx, userID, bytes)
}

// Status returns (used, limit) for the user, through the user-info cache.
func (l *QuotaLedger) Status(ctx context.Context, userID uint64) (*dto.QuotaStatus, error) {
	key := utils.BuildCacheKey(utils.CacheKeyUserInfo, userID)
	var cached dto.QuotaStatus
	if err := l.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	user, err := l.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &dto.QuotaStatus{Used: user.QuotaUsed, Limit: user.QuotaLimit}
	if err := l.cache.Set(ctx, key, status, l.userTTL); err != nil {
		log.Printf("quota: cache user info failed: %v", err)
	}
	return status, nil
}
