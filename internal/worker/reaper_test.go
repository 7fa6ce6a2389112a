package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CloudKeep/internal/repo"
	"CloudKeep/internal/service"
	"CloudKeep/internal/worker"
	"CloudKeep/model"
	"CloudKeep/utils"
)

var dbSeq atomic.Int64

type fakeNotifier struct {
	mu    sync.Mutex
	calls map[uint64]int
}

func (n *fakeNotifier) TrashPurged(ctx context.Context, userID uint64, items int) {
	n.mu.Lock()
	if n.calls == nil {
		n.calls = map[uint64]int{}
	}
	n.calls[userID] += items
	n.mu.Unlock()
}

type reaperEnv struct {
	store    service.RecordStore
	ledger   *service.QuotaLedger
	manager  *service.TrashManager
	notifier *fakeNotifier
	reaper   *worker.Reaper
}

func newReaperEnv(t *testing.T, lifespanDays int) *reaperEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:reaper_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := repo.OpenSqlite(dsn)
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	kv := utils.NewMemoryCache()
	store := repo.NewGormStore(db)
	ledger := service.NewQuotaLedger(db, kv, time.Minute)
	cache := service.NewMetadataCache(kv, store, nil, time.Minute)
	manager := service.NewTrashManager(store, cache, ledger, nil)
	notifier := &fakeNotifier{}
	reaper := worker.NewReaper(store, manager, worker.ReaperConfig{
		TrashLifespanDays: lifespanDays,
	}, nil, notifier)
	return &reaperEnv{store: store, ledger: ledger, manager: manager, notifier: notifier, reaper: reaper}
}

func (env *reaperEnv) createUser(t *testing.T, name string) *model.User {
	t.Helper()
	user := &model.User{UserName: name, Password: "x", Email: name + "@test.com", QuotaLimit: 1000}
	if err := env.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func (env *reaperEnv) createFile(t *testing.T, userID uint64, name string, size int64, shelfLife *time.Time) *model.File {
	t.Helper()
	ctx := context.Background()
	file := &model.File{
		UserID:    userID,
		UUID:      utils.NewBlobID(),
		Name:      name,
		Extension: "bin",
		Size:      size,
		ShelfLife: shelfLife,
	}
	if err := env.store.CreateFile(ctx, file); err != nil {
		t.Fatalf("create file %s failed: %v", name, err)
	}
	if err := env.ledger.Increase(ctx, userID, size); err != nil {
		t.Fatalf("account file %s failed: %v", name, err)
	}
	return file
}

func (env *reaperEnv) used(t *testing.T, userID uint64) int64 {
	t.Helper()
	user, err := env.store.FindUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("find user failed: %v", err)
	}
	return user.QuotaUsed
}

// TestSweepShelfLife verifies expired files are purged with their bytes
// released, never-expiring and future-dated files survive, and a second run
// changes nothing.
func TestSweepShelfLife(t *testing.T) {
	env := newReaperEnv(t, 10)
	ctx := context.Background()
	user := env.createUser(t, "expiry")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)
	expired := env.createFile(t, user.ID, "expired", 40, &past)
	fresh := env.createFile(t, user.ID, "fresh", 30, &future)
	forever := env.createFile(t, user.ID, "forever", 20, nil)

	if err := env.reaper.SweepShelfLife(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if _, err := env.store.FindFile(ctx, user.ID, expired.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expired file should be purged, got %v", err)
	}
	for _, f := range []*model.File{fresh, forever} {
		if _, err := env.store.FindFile(ctx, user.ID, f.ID); err != nil {
			t.Fatalf("file %s should survive: %v", f.Name, err)
		}
	}
	if got := env.used(t, user.ID); got != 50 {
		t.Fatalf("used = %d, want 50 after purge", got)
	}

	// re-run must be a no-op
	if err := env.reaper.SweepShelfLife(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if got := env.used(t, user.ID); got != 50 {
		t.Fatalf("used = %d after re-run, want 50", got)
	}
}

// TestSweepShelfLifePurgesTrashedFiles verifies expiry applies regardless of
// trash state.
func TestSweepShelfLifePurgesTrashedFiles(t *testing.T) {
	env := newReaperEnv(t, 10)
	ctx := context.Background()
	user := env.createUser(t, "trashed_expiry")

	past := time.Now().Add(-time.Hour)
	file := env.createFile(t, user.ID, "doomed", 25, &past)
	if err := env.manager.TrashFile(ctx, user.ID, file.ID); err != nil {
		t.Fatalf("trash failed: %v", err)
	}

	if err := env.reaper.SweepShelfLife(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if _, err := env.store.FindFile(ctx, user.ID, file.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("trashed expired file should be purged, got %v", err)
	}
	if got := env.used(t, user.ID); got != 0 {
		t.Fatalf("used = %d, want 0", got)
	}
}

// TestSweepTrashRetention verifies entities trashed past the retention
// window are purged (folders as a unit), recent trash survives, the owner is
// notified, and a re-run changes nothing.
func TestSweepTrashRetention(t *testing.T) {
	env := newReaperEnv(t, 10)
	ctx := context.Background()
	user := env.createUser(t, "retention")

	folder := &model.Folder{UserID: user.ID, Name: "stale"}
	if err := env.store.CreateFolder(ctx, folder); err != nil {
		t.Fatalf("create folder failed: %v", err)
	}
	member := env.createFile(t, user.ID, "member", 10, nil)
	if err := env.store.UpdateFile(ctx, member.ID, map[string]interface{}{"folder_id": folder.ID}); err != nil {
		t.Fatalf("move member failed: %v", err)
	}
	old := env.createFile(t, user.ID, "old", 20, nil)
	recent := env.createFile(t, user.ID, "recent", 30, nil)

	longAgo := time.Now().AddDate(0, 0, -20)
	yesterday := time.Now().AddDate(0, 0, -1)
	if err := env.store.SoftDeleteFolder(ctx, folder.ID, longAgo); err != nil {
		t.Fatalf("soft delete folder failed: %v", err)
	}
	if err := env.store.SoftDeleteFile(ctx, member.ID, longAgo); err != nil {
		t.Fatalf("soft delete member failed: %v", err)
	}
	if err := env.store.SoftDeleteFile(ctx, old.ID, longAgo); err != nil {
		t.Fatalf("soft delete old failed: %v", err)
	}
	if err := env.store.SoftDeleteFile(ctx, recent.ID, yesterday); err != nil {
		t.Fatalf("soft delete recent failed: %v", err)
	}

	if err := env.reaper.SweepTrashRetention(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	for _, id := range []uint64{member.ID, old.ID} {
		if _, err := env.store.FindFile(ctx, user.ID, id); !errors.Is(err, service.ErrNotFound) {
			t.Fatalf("file %d should be purged, got %v", id, err)
		}
	}
	if _, err := env.store.FindFolder(ctx, user.ID, folder.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("folder should be purged, got %v", err)
	}
	if _, err := env.store.FindFile(ctx, user.ID, recent.ID); err != nil {
		t.Fatalf("recent trash should survive: %v", err)
	}
	if got := env.used(t, user.ID); got != 30 {
		t.Fatalf("used = %d, want 30", got)
	}
	if env.notifier.calls[user.ID] == 0 {
		t.Fatal("owner should be notified about the purge")
	}

	// re-run must be a no-op
	notified := env.notifier.calls[user.ID]
	if err := env.reaper.SweepTrashRetention(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if got := env.used(t, user.ID); got != 30 {
		t.Fatalf("used = %d after re-run, want 30", got)
	}
	if env.notifier.calls[user.ID] != notified {
		t.Fatal("re-run must not notify again")
	}
}
