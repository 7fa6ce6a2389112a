package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"CloudKeep/internal/service"

	"golang.org/x/time/rate"
)

// Locker guards a sweep so only one replica runs it at a time.
// repo.RedisLock satisfies this.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Notifier tells a user the retention sweep emptied part of their trash.
type Notifier interface {
	TrashPurged(ctx context.Context, userID uint64, items int)
}

// ReaperConfig carries the sweep cadences and the trash retention window.
type ReaperConfig struct {
	ShelfSweepInterval time.Duration
	TrashSweepInterval time.Duration
	TrashLifespanDays  int

	// PurgeRate bounds purges per second during a sweep; zero means
	// unlimited.
	PurgeRate  float64
	PurgeBurst int
}

// Reaper periodically purges files past their shelf life and trashed
// entities past the retention window. Every purge is its own atomic unit:
// one failing entity is logged and skipped, never aborting the sweep, and
// no lock is held across a whole sweep.
type Reaper struct {
	store    service.RecordStore
	manager  *service.TrashManager
	newLock  func(key string) Locker
	notifier Notifier
	cfg      ReaperConfig
	limiter  *rate.Limiter
}

// NewReaper builds a reaper. newLock and notifier may be nil.
func NewReaper(store service.RecordStore, manager *service.TrashManager, cfg ReaperConfig, newLock func(key string) Locker, notifier Notifier) *Reaper {
	if cfg.ShelfSweepInterval <= 0 {
		cfg.ShelfSweepInterval = time.Minute
	}
	if cfg.TrashSweepInterval <= 0 {
		cfg.TrashSweepInterval = 24 * time.Hour
	}
	burst := cfg.PurgeBurst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if cfg.PurgeRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(cfg.PurgeRate), burst)
	}
	return &Reaper{
		store:    store,
		manager:  manager,
		newLock:  newLock,
		notifier: notifier,
		cfg:      cfg,
		limiter:  limiter,
	}
}

// Run drives both sweeps until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	shelfTicker := time.NewTicker(r.cfg.ShelfSweepInterval)
	trashTicker := time.NewTicker(r.cfg.TrashSweepInterval)
	defer shelfTicker.Stop()
	defer trashTicker.Stop()

	log.Println("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Println("reaper stopped")
			return
		case <-shelfTicker.C:
			r.withLock(ctx, "reaper:shelf", r.SweepShelfLife)
			if err := r.manager.PruneCacheTags(ctx); err != nil {
				log.Printf("reaper: prune cache tags failed: %v", err)
			}
		case <-trashTicker.C:
			r.withLock(ctx, "reaper:trash", r.SweepTrashRetention)
		}
	}
}

// withLock runs one sweep under the cross-replica lock when configured.
// A busy lock means another replica is sweeping; skip this round.
func (r *Reaper) withLock(ctx context.Context, key string, sweep func(context.Context) error) {
	if r.newLock != nil {
		lock := r.newLock(key)
		if err := lock.Lock(ctx); err != nil {
			log.Printf("reaper: %s busy, skipping: %v", key, err)
			return
		}
		defer func() {
			if err := lock.Unlock(ctx); err != nil {
				log.Printf("reaper: unlock %s failed: %v", key, err)
			}
		}()
	}
	if err := sweep(ctx); err != nil {
		log.Printf("reaper: %s failed: %v", key, err)
	}
}

func (r *Reaper) purgeFile(ctx context.Context, userID, fileID uint64) bool {
	if err := r.limiter.Wait(ctx); err != nil {
		return false
	}
	err := r.manager.PurgeFile(ctx, userID, fileID)
	if err == nil {
		return true
	}
	if !errors.Is(err, service.ErrNotFound) {
		log.Printf("reaper: purge file %d failed: %v", fileID, err)
	}
	return false
}

// SweepShelfLife purges every file whose shelf-life deadline has passed,
// trashed or not. Already-purged entries surface as not-found and are
// skipped, which makes re-running the sweep a no-op.
func (r *Reaper) SweepShelfLife(ctx context.Context) error {
	files, err := r.store.FilesPastShelfLife(ctx, time.Now())
	if err != nil {
		return err
	}
	purged := 0
	for i := range files {
		if r.purgeFile(ctx, files[i].UserID, files[i].ID) {
			purged++
		}
	}
	if purged > 0 {
		log.Printf("reaper: shelf-life sweep purged %d file(s)", purged)
	}
	return nil
}

// SweepTrashRetention purges every folder and file whose trash stamp is
// older than the retention window, across all users. Folders go first so
// their members are covered in one cascade; remaining expired files follow.
func (r *Reaper) SweepTrashRetention(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -r.cfg.TrashLifespanDays)
	perUser := make(map[uint64]int)

	folders, err := r.store.FoldersTrashedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for i := range folders {
		folder := &folders[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.manager.PurgeFolder(ctx, folder.UserID, folder.ID); err != nil {
			if !errors.Is(err, service.ErrNotFound) {
				log.Printf("reaper: purge folder %d failed: %v", folder.ID, err)
			}
			continue
		}
		perUser[folder.UserID]++
	}

	// requery: folder cascades above already removed their member files
	files, err := r.store.FilesTrashedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for i := range files {
		if r.purgeFile(ctx, files[i].UserID, files[i].ID) {
			perUser[files[i].UserID]++
		}
	}

	if r.notifier != nil {
		for userID, items := range perUser {
			r.notifier.TrashPurged(ctx, userID, items)
		}
	}
	return nil
}
