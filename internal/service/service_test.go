package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/internal/repo"
	"CloudKeep/internal/service"
	"CloudKeep/model"
	"CloudKeep/utils"
)

var dbSeq atomic.Int64

// fakeBlobMeta serves blob metadata without an object store.
type fakeBlobMeta struct{}

func (fakeBlobMeta) BlobMeta(ctx context.Context, blobID string) (service.BlobMeta, error) {
	return service.BlobMeta{
		ContentType: "application/octet-stream",
		ThumbURL:    "http://thumbs.local/" + blobID,
	}, nil
}

// fakeEvents records published purge events.
type fakeEvents struct {
	mu     sync.Mutex
	purged []string
}

func (e *fakeEvents) FilePurged(ctx context.Context, userID uint64, blobID string) error {
	e.mu.Lock()
	e.purged = append(e.purged, blobID)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.purged)
}

type testEnv struct {
	kv      *utils.MemoryCache
	store   service.RecordStore
	ledger  *service.QuotaLedger
	cache   *service.MetadataCache
	manager *service.TrashManager
	files   *service.FileService
	users   *service.UserService
	events  *fakeEvents
}

// newTestEnv builds the full core over an isolated in-memory database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := repo.OpenSqlite(dsn)
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}

	kv := utils.NewMemoryCache()
	store := repo.NewGormStore(db)
	ledger := service.NewQuotaLedger(db, kv, time.Minute)
	cache := service.NewMetadataCache(kv, store, fakeBlobMeta{}, time.Minute)
	events := &fakeEvents{}
	return &testEnv{
		kv:      kv,
		store:   store,
		ledger:  ledger,
		cache:   cache,
		manager: service.NewTrashManager(store, cache, ledger, events),
		files:   service.NewFileService(store, cache, ledger),
		users:   service.NewUserService(store, 100),
		events:  events,
	}
}

func (env *testEnv) createUser(t *testing.T, name string, limit int64) *model.User {
	t.Helper()
	user := &model.User{
		UserName:   name,
		Password:   "secret",
		Email:      name + "@test.com",
		QuotaLimit: limit,
	}
	if err := env.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func (env *testEnv) upload(t *testing.T, userID uint64, name string, size int64, folderID *uint64) *dto.FileView {
	t.Helper()
	view, err := env.files.UploadAccounted(context.Background(), userID, dto.UploadInput{
		Name:      name,
		Extension: "txt",
		Size:      size,
		FolderID:  folderID,
	})
	if err != nil {
		t.Fatalf("upload %s failed: %v", name, err)
	}
	return view
}

func (env *testEnv) createFolder(t *testing.T, userID uint64, name string) *dto.FolderView {
	t.Helper()
	folder, err := env.files.CreateFolder(context.Background(), userID, name)
	if err != nil {
		t.Fatalf("create folder %s failed: %v", name, err)
	}
	return folder
}

func (env *testEnv) used(t *testing.T, userID uint64) int64 {
	t.Helper()
	user, err := env.store.FindUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("find user failed: %v", err)
	}
	return user.QuotaUsed
}
