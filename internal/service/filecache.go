package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/model"
	"CloudKeep/utils"
)

// MetadataCache serves file display projections without rejoining record,
// blob metadata and thumbnail URL on every read. Entries carry the "files"
// tag, plus the "trashed" tag exactly while the underlying file is
// soft-deleted; the tag index makes "empty trash" an O(tag) bulk eviction
// instead of a keyspace walk.
type MetadataCache struct {
	kv    utils.Cache
	store RecordStore
	meta  BlobMetaProvider
	ttl   time.Duration
}

// NewMetadataCache builds the projection cache.
func NewMetadataCache(kv utils.Cache, store RecordStore, meta BlobMetaProvider, ttl time.Duration) *MetadataCache {
	return &MetadataCache{kv: kv, store: store, meta: meta, ttl: ttl}
}

func fileViewKey(fileID uint64) string {
	return utils.BuildCacheKey(utils.CacheKeyFileView, fileID)
}

// Get returns the cached projection for a file, or a miss. Transient cache
// errors are retried once; a miss never is.
func (c *MetadataCache) Get(ctx context.Context, fileID uint64) (*dto.FileView, bool) {
	key := fileViewKey(fileID)
	var view dto.FileView
	err := c.kv.Get(ctx, key, &view)
	if errors.Is(err, utils.ErrCacheMiss) {
		return nil, false
	}
	if err != nil {
		// 读路径幂等 重试一次
		if err = c.kv.Get(ctx, key, &view); err != nil {
			if !errors.Is(err, utils.ErrCacheMiss) {
				log.Printf("filecache: get %s failed: %v", key, err)
			}
			return nil, false
		}
	}
	return &view, true
}

// Put stores a projection with TTL and syncs the tag index to the given
// trash state.
func (c *MetadataCache) Put(ctx context.Context, view *dto.FileView, trashed bool) error {
	key := fileViewKey(view.ID)
	if err := c.kv.Set(ctx, key, view, c.ttl); err != nil {
		return err
	}
	if err := c.kv.SetAdd(ctx, utils.CacheTagFiles, key); err != nil {
		return err
	}
	if trashed {
		return c.kv.SetAdd(ctx, utils.CacheTagTrashed, key)
	}
	return c.kv.SetRemove(ctx, utils.CacheTagTrashed, key)
}

// MarkTrashed adds the trashed tag to an existing entry without recomputing
// the projection. No-op when the entry is absent; the next read repopulates
// with the correct state anyway.
func (c *MetadataCache) MarkTrashed(ctx context.Context, fileID uint64) error {
	key := fileViewKey(fileID)
	ok, err := c.kv.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.kv.SetAdd(ctx, utils.CacheTagTrashed, key)
}

// MarkRestored drops the trashed tag. Safe to call when no entry exists.
func (c *MetadataCache) MarkRestored(ctx context.Context, fileID uint64) error {
	return c.kv.SetRemove(ctx, utils.CacheTagTrashed, fileViewKey(fileID))
}

// Invalidate removes entries entirely, used on permanent delete and on
// content-affecting updates.
func (c *MetadataCache) Invalidate(ctx context.Context, fileIDs ...uint64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		keys = append(keys, fileViewKey(id))
	}
	if err := c.kv.Delete(ctx, keys...); err != nil {
		return err
	}
	if err := c.kv.SetRemove(ctx, utils.CacheTagTrashed, keys...); err != nil {
		return err
	}
	return c.kv.SetRemove(ctx, utils.CacheTagFiles, keys...)
}

// PurgeAllTrashed bulk-evicts every entry tagged trashed, any user, in one
// tag-index operation.
func (c *MetadataCache) PurgeAllTrashed(ctx context.Context) error {
	members, err := c.kv.SetMembers(ctx, utils.CacheTagTrashed)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	if err := c.kv.Delete(ctx, members...); err != nil {
		return err
	}
	if err := c.kv.SetRemove(ctx, utils.CacheTagFiles, members...); err != nil {
		return err
	}
	return c.kv.SetRemove(ctx, utils.CacheTagTrashed, members...)
}

// PruneTags drops tag members whose entry expired by TTL, so the tag sets
// do not accumulate ghost keys. Run periodically; safe to repeat.
func (c *MetadataCache) PruneTags(ctx context.Context) error {
	for _, tag := range []string{utils.CacheTagFiles, utils.CacheTagTrashed} {
		members, err := c.kv.SetMembers(ctx, tag)
		if err != nil {
			return err
		}
		var stale []string
		for _, key := range members {
			ok, err := c.kv.Exists(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			if err := c.kv.SetRemove(ctx, tag, stale...); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildView computes a file's projection from its record plus blob
// metadata. Thumbnail lookup is best effort; a projection without a thumb
// beats a failed listing.
func (c *MetadataCache) BuildView(ctx context.Context, file *model.File) *dto.FileView {
	view := &dto.FileView{
		ID:        file.ID,
		Name:      file.Name,
		FileName:  file.Name,
		Extension: file.Extension,
		Size:      file.Size,
		UUID:      file.UUID,
		FolderID:  file.FolderID,
		ShelfLife: file.ShelfLife,
	}
	if file.Extension != "" {
		view.FileName = fmt.Sprintf("%s.%s", file.Name, file.Extension)
	}
	if c.meta != nil {
		blob, err := c.meta.BlobMeta(ctx, file.UUID)
		if err != nil {
			log.Printf("filecache: blob meta for %s failed: %v", file.UUID, err)
		} else {
			view.ThumbURL = blob.ThumbURL
			if view.Size == 0 {
				view.Size = blob.Size
			}
		}
	}
	return view
}

// LoadMany returns projections for the given file IDs in order. Cached
// entries are served as-is; misses are batch-fetched from the record store,
// built, cached tagged per wantTrashed, and merged back in. IDs that no
// longer resolve (purged mid-request) are dropped cleanly.
func (c *MetadataCache) LoadMany(ctx context.Context, fileIDs []uint64, wantTrashed bool) ([]dto.FileView, error) {
	found := make(map[uint64]*dto.FileView, len(fileIDs))
	var missing []uint64
	for _, id := range fileIDs {
		if view, ok := c.Get(ctx, id); ok {
			found[id] = view
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		files, err := c.store.FilesByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range files {
			file := &files[i]
			view := c.BuildView(ctx, file)
			if err := c.Put(ctx, view, wantTrashed); err != nil {
				log.Printf("filecache: populate %d failed: %v", file.ID, err)
			}
			found[file.ID] = view
		}
	}

	views := make([]dto.FileView, 0, len(fileIDs))
	for _, id := range fileIDs {
		if view, ok := found[id]; ok {
			views = append(views, *view)
		}
	}
	return views, nil
}
