package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/model"
)

// TrashManager orchestrates the soft-delete lifecycle across files and
// folders: Live -> Trashed -> Restored or Purged, plus the direct
// Live -> Purged path used for shelf-life expiry. It keeps the metadata
// cache and the quota ledger consistent with every transition. Trashing
// never touches the ledger (the bytes stay reserved while recoverable);
// purging releases them; restoring re-admits them through the ledger's
// reserve path.
type TrashManager struct {
	store  RecordStore
	cache  *MetadataCache
	ledger *QuotaLedger
	events EventPublisher
}

// NewTrashManager wires the lifecycle manager with its collaborators.
// events may be nil when no broker is configured.
func NewTrashManager(store RecordStore, cache *MetadataCache, ledger *QuotaLedger, events EventPublisher) *TrashManager {
	return &TrashManager{store: store, cache: cache, ledger: ledger, events: events}
}

// Trash dispatches a trash action by entity kind.
func (m *TrashManager) Trash(ctx context.Context, userID uint64, ref dto.EntityRef) error {
	switch ref.Kind {
	case dto.EntityFolder:
		return m.TrashFolder(ctx, userID, ref.ID)
	default:
		return m.TrashFile(ctx, userID, ref.ID)
	}
}

// Restore dispatches a restore action by entity kind.
func (m *TrashManager) Restore(ctx context.Context, userID uint64, ref dto.EntityRef) error {
	switch ref.Kind {
	case dto.EntityFolder:
		return m.RestoreFolder(ctx, userID, ref.ID)
	default:
		return m.RestoreFile(ctx, userID, ref.ID)
	}
}

// Purge dispatches a permanent delete by entity kind.
func (m *TrashManager) Purge(ctx context.Context, userID uint64, ref dto.EntityRef) error {
	switch ref.Kind {
	case dto.EntityFolder:
		return m.PurgeFolder(ctx, userID, ref.ID)
	default:
		return m.PurgeFile(ctx, userID, ref.ID)
	}
}

// TrashFile soft-deletes a file. The quota ledger is untouched; trashed
// bytes remain reserved until purge.
func (m *TrashManager) TrashFile(ctx context.Context, userID, fileID uint64) error {
	file, err := m.store.FindFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if file.Trashed() {
		return nil
	}
	if err := m.store.SoftDeleteFile(ctx, file.ID, time.Now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			// lost the race to another trash or purge
			return nil
		}
		return err
	}
	if err := m.cache.MarkTrashed(ctx, file.ID); err != nil {
		log.Printf("trash: mark trashed %d failed: %v", file.ID, err)
	}
	return nil
}

// TrashFolder soft-deletes a folder and cascades over every live member
// file.
func (m *TrashManager) TrashFolder(ctx context.Context, userID, folderID uint64) error {
	folder, err := m.store.FindFolder(ctx, userID, folderID)
	if err != nil {
		return err
	}
	if folder.Trashed() {
		return nil
	}
	now := time.Now()
	if err := m.store.SoftDeleteFolder(ctx, folder.ID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	members, err := m.store.FilesByParent(ctx, folder.ID)
	if err != nil {
		return err
	}
	for i := range members {
		member := &members[i]
		if member.Trashed() {
			continue
		}
		if err := m.store.SoftDeleteFile(ctx, member.ID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		if err := m.cache.MarkTrashed(ctx, member.ID); err != nil {
			log.Printf("trash: mark trashed %d failed: %v", member.ID, err)
		}
	}
	return nil
}

// RestoreFile brings a trashed file back, subject to quota admission. The
// shelf-life deadline is cleared: a restored file is no longer scheduled
// for automatic expiry. Files under a still-trashed folder must be restored
// through the folder.
func (m *TrashManager) RestoreFile(ctx context.Context, userID, fileID uint64) error {
	file, err := m.store.FindFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if !file.Trashed() {
		return ErrNotFound
	}
	if file.FolderID != nil {
		folder, err := m.store.FindFolder(ctx, userID, *file.FolderID)
		if err == nil && folder.Trashed() {
			return fmt.Errorf("%w: parent folder is trashed", ErrInvalidCascade)
		}
	}

	if err := m.ledger.Reserve(ctx, userID, file.Size); err != nil {
		return err
	}
	if err := m.store.RestoreFile(ctx, file.ID); err != nil {
		if rbErr := m.ledger.Decrease(ctx, userID, file.Size); rbErr != nil {
			log.Printf("trash: release reservation for %d failed: %v", file.ID, rbErr)
		}
		return err
	}
	if err := m.cache.MarkRestored(ctx, file.ID); err != nil {
		log.Printf("trash: mark restored %d failed: %v", file.ID, err)
	}
	return nil
}

// RestoreFolder restores a folder and all trashed member files as a unit.
// Admission uses the summed member size in one reservation, and the row
// updates run in one store transaction, so partial restores never happen: a
// failed cascade releases the reservation, leaves every row trashed and can
// be retried as a whole.
func (m *TrashManager) RestoreFolder(ctx context.Context, userID, folderID uint64) error {
	folder, err := m.store.FindFolder(ctx, userID, folderID)
	if err != nil {
		return err
	}
	if !folder.Trashed() {
		return ErrNotFound
	}
	members, err := m.store.FilesByParent(ctx, folder.ID)
	if err != nil {
		return err
	}
	var total int64
	var trashedIDs []uint64
	for i := range members {
		if members[i].Trashed() {
			total += members[i].Size
			trashedIDs = append(trashedIDs, members[i].ID)
		}
	}

	if err := m.ledger.Reserve(ctx, userID, total); err != nil {
		return err
	}
	if err := m.store.RestoreFolderCascade(ctx, folder.ID, trashedIDs); err != nil {
		if rbErr := m.ledger.Decrease(ctx, userID, total); rbErr != nil {
			log.Printf("trash: release reservation for folder %d failed: %v", folder.ID, rbErr)
		}
		return err
	}
	for _, id := range trashedIDs {
		if err := m.cache.MarkRestored(ctx, id); err != nil {
			log.Printf("trash: mark restored %d failed: %v", id, err)
		}
	}
	return nil
}

// purgeFileRecord removes one file record and its quota charge in a single
// store transaction, then evicts the cache entry and announces the purge.
// A failed transaction applies nothing, so the whole purge can be retried;
// a concurrent purge surfaces as ErrNotFound and nothing is double-applied.
// Cache invalidation can be deferred when the caller bulk-evicts by tag
// afterwards; a failed eviction is only logged, since without its record
// the entry is unreachable from listings and expires by TTL.
func (m *TrashManager) purgeFileRecord(ctx context.Context, file *model.File, invalidate bool) error {
	if err := m.store.PurgeFileAccounted(ctx, file.ID, file.UserID, file.Size); err != nil {
		return err
	}
	m.ledger.InvalidateStatus(ctx, file.UserID)
	if invalidate {
		if err := m.cache.Invalidate(ctx, file.ID); err != nil {
			log.Printf("trash: invalidate %d failed: %v", file.ID, err)
		}
	}
	if m.events != nil {
		if err := m.events.FilePurged(ctx, file.UserID, file.UUID); err != nil {
			log.Printf("trash: publish purge of %s failed: %v", file.UUID, err)
		}
	}
	return nil
}

// PurgeFile permanently removes a file in any state. Used by explicit purge
// and by the shelf-life sweep, which bypasses the trash.
func (m *TrashManager) PurgeFile(ctx context.Context, userID, fileID uint64) error {
	file, err := m.store.FindFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	return m.purgeFileRecord(ctx, file, true)
}

// PurgeFolder permanently removes a trashed folder and its trashed member
// files. A live member means the caller skipped the trash step; that is an
// error, not a silent cascade over live data.
func (m *TrashManager) PurgeFolder(ctx context.Context, userID, folderID uint64) error {
	folder, err := m.store.FindFolder(ctx, userID, folderID)
	if err != nil {
		return err
	}
	members, err := m.store.FilesByParent(ctx, folder.ID)
	if err != nil {
		return err
	}
	for i := range members {
		if !members[i].Trashed() {
			return ErrInvalidCascade
		}
	}
	for i := range members {
		if err := m.purgeFileRecord(ctx, &members[i], true); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return m.store.ForceDeleteFolder(ctx, folder.ID)
}

// PurgeAll empties a user's trash: every trashed folder with its members,
// then every trashed file not covered by one of those folders. Cache
// eviction happens once over the trashed tag instead of per file.
func (m *TrashManager) PurgeAll(ctx context.Context, userID uint64) error {
	folders, err := m.store.FoldersByOwner(ctx, userID, true)
	if err != nil {
		return err
	}
	for i := range folders {
		folder := &folders[i]
		members, err := m.store.FilesByParent(ctx, folder.ID)
		if err != nil {
			return err
		}
		for j := range members {
			if !members[j].Trashed() {
				return ErrInvalidCascade
			}
			if err := m.purgeFileRecord(ctx, &members[j], false); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if err := m.store.ForceDeleteFolder(ctx, folder.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	files, err := m.store.FilesByOwner(ctx, userID, true)
	if err != nil {
		return err
	}
	for i := range files {
		if err := m.purgeFileRecord(ctx, &files[i], false); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return m.cache.PurgeAllTrashed(ctx)
}

// PruneCacheTags drops tag-index members whose cache entries expired by
// TTL. Called by the reaper as periodic hygiene.
func (m *TrashManager) PruneCacheTags(ctx context.Context) error {
	return m.cache.PruneTags(ctx)
}

// ListTrashed returns the user's trashed folders plus trashed files that are
// not nested under one of them, so items that disappear together with their
// parent are not double-listed.
func (m *TrashManager) ListTrashed(ctx context.Context, userID uint64) ([]dto.FolderView, []dto.FileView, error) {
	folders, err := m.store.FoldersByOwner(ctx, userID, true)
	if err != nil {
		return nil, nil, err
	}
	trashedFolders := make(map[uint64]struct{}, len(folders))
	folderViews := make([]dto.FolderView, 0, len(folders))
	for i := range folders {
		trashedFolders[folders[i].ID] = struct{}{}
		folderViews = append(folderViews, dto.FolderView{
			ID:        folders[i].ID,
			Name:      folders[i].Name,
			TrashedAt: folders[i].TrashedAt,
			CreatedAt: folders[i].CreatedAt,
		})
	}

	files, err := m.store.FilesByOwner(ctx, userID, true)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uint64, 0, len(files))
	for i := range files {
		if files[i].FolderID != nil {
			if _, nested := trashedFolders[*files[i].FolderID]; nested {
				continue
			}
		}
		ids = append(ids, files[i].ID)
	}

	views, err := m.cache.LoadMany(ctx, ids, true)
	if err != nil {
		return nil, nil, err
	}
	return folderViews, views, nil
}
