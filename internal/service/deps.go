package service

import (
	"context"
	"time"

	"CloudKeep/model"
)

// RecordStore is the narrow persistence surface the core consumes. The gorm
// implementation lives in internal/repo; tests run it over in-memory sqlite.
type RecordStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUser(ctx context.Context, userID uint64) (*model.User, error)
	FindUserByName(ctx context.Context, name string) (*model.User, error)

	CreateFile(ctx context.Context, file *model.File) error
	CreateFolder(ctx context.Context, folder *model.Folder) error
	FindFile(ctx context.Context, userID, fileID uint64) (*model.File, error)
	FindFolder(ctx context.Context, userID, folderID uint64) (*model.Folder, error)

	FilesByParent(ctx context.Context, folderID uint64) ([]model.File, error)
	FilesByIDs(ctx context.Context, ids []uint64) ([]model.File, error)
	LiveFilesByOwner(ctx context.Context, userID uint64, folderID *uint64) ([]model.File, error)
	FilesByOwner(ctx context.Context, userID uint64, trashed bool) ([]model.File, error)
	FoldersByOwner(ctx context.Context, userID uint64, trashed bool) ([]model.Folder, error)
	CountLiveFolderName(ctx context.Context, userID uint64, name string) (int64, error)

	UpdateFile(ctx context.Context, fileID uint64, fields map[string]interface{}) error
	SoftDeleteFile(ctx context.Context, fileID uint64, at time.Time) error
	SoftDeleteFolder(ctx context.Context, folderID uint64, at time.Time) error
	RestoreFile(ctx context.Context, fileID uint64) error
	RestoreFolder(ctx context.Context, folderID uint64) error
	ForceDeleteFile(ctx context.Context, fileID uint64) error
	ForceDeleteFolder(ctx context.Context, folderID uint64) error

	// Transactional composites: either every mutation lands or none does,
	// so a failed call can be retried as a whole action.
	RestoreFolderCascade(ctx context.Context, folderID uint64, memberIDs []uint64) error
	PurgeFileAccounted(ctx context.Context, fileID, userID uint64, size int64) error

	FilesPastShelfLife(ctx context.Context, now time.Time) ([]model.File, error)
	FilesTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.File, error)
	FoldersTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.Folder, error)
}

// BlobMeta is what the blob/thumbnail collaborator knows about a stored
// object.
type BlobMeta struct {
	Size        int64
	ContentType string
	ThumbURL    string
}

// BlobMetaProvider resolves blob metadata for projection building. Pure
// read; the MinIO implementation lives in internal/storage.
type BlobMetaProvider interface {
	BlobMeta(ctx context.Context, blobID string) (BlobMeta, error)
}

// EventPublisher announces lifecycle events to out-of-band consumers (the
// blob cleanup worker). Best effort, publishers must not block mutations.
type EventPublisher interface {
	FilePurged(ctx context.Context, userID uint64, blobID string) error
}
