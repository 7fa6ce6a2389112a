package repo

import (
	"context"
	"errors"
	"log"
	"time"

	"CloudKeep/internal/service"
	"CloudKeep/model"

	"gorm.io/gorm"
)

// GormStore implements service.RecordStore over a gorm database.
type GormStore struct {
	db *gorm.DB
}

var _ service.RecordStore = (*GormStore)(nil)

// NewGormStore builds a record store from a gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return service.ErrNotFound
	}
	return err
}

// CreateUser inserts a user row.
func (s *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// FindUser returns a user by ID.
func (s *GormStore) FindUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

// FindUserByName returns a user by username.
func (s *GormStore) FindUserByName(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("user_name = ?", name).First(&user).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

// CreateFile inserts a file record.
func (s *GormStore) CreateFile(ctx context.Context, file *model.File) error {
	return s.db.WithContext(ctx).Create(file).Error
}

// CreateFolder inserts a folder record.
func (s *GormStore) CreateFolder(ctx context.Context, folder *model.Folder) error {
	return s.db.WithContext(ctx).Create(folder).Error
}

// FindFile returns an owner's file in any trash state.
func (s *GormStore) FindFile(ctx context.Context, userID, fileID uint64) (*model.File, error) {
	var file model.File
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", fileID, userID).
		First(&file).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &file, nil
}

// FindFolder returns an owner's folder in any trash state.
func (s *GormStore) FindFolder(ctx context.Context, userID, folderID uint64) (*model.Folder, error) {
	var folder model.Folder
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", folderID, userID).
		First(&folder).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &folder, nil
}

// FilesByParent lists a folder's member files in any trash state.
func (s *GormStore) FilesByParent(ctx context.Context, folderID uint64) ([]model.File, error) {
	var files []model.File
	err := s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Find(&files).Error
	return files, err
}

// FilesByIDs batch-loads file records.
func (s *GormStore) FilesByIDs(ctx context.Context, ids []uint64) ([]model.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []model.File
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error
	return files, err
}

// LiveFilesByOwner lists an owner's live files under one parent folder.
// A nil folderID means the root.
func (s *GormStore) LiveFilesByOwner(ctx context.Context, userID uint64, folderID *uint64) ([]model.File, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND trashed_at IS NULL", userID)
	if folderID == nil || *folderID == 0 {
		query = query.Where("folder_id IS NULL")
	} else {
		query = query.Where("folder_id = ?", *folderID)
	}
	var files []model.File
	err := query.Order("created_at DESC").Find(&files).Error
	return files, err
}

// FilesByOwner lists an owner's files by trash state.
func (s *GormStore) FilesByOwner(ctx context.Context, userID uint64, trashed bool) ([]model.File, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if trashed {
		query = query.Where("trashed_at IS NOT NULL").Order("trashed_at DESC")
	} else {
		query = query.Where("trashed_at IS NULL").Order("created_at DESC")
	}
	var files []model.File
	err := query.Find(&files).Error
	return files, err
}

// FoldersByOwner lists an owner's folders by trash state.
func (s *GormStore) FoldersByOwner(ctx context.Context, userID uint64, trashed bool) ([]model.Folder, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if trashed {
		query = query.Where("trashed_at IS NOT NULL").Order("trashed_at DESC")
	} else {
		query = query.Where("trashed_at IS NULL").Order("created_at DESC")
	}
	var folders []model.Folder
	err := query.Find(&folders).Error
	return folders, err
}

// CountLiveFolderName counts live folders with the given name in the
// owner's namespace.
func (s *GormStore) CountLiveFolderName(ctx context.Context, userID uint64, name string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Folder{}).
		Where("user_id = ? AND name = ? AND trashed_at IS NULL", userID, name).
		Count(&count).Error
	return count, err
}

// UpdateFile applies field updates to a file record.
func (s *GormStore) UpdateFile(ctx context.Context, fileID uint64, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", fileID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// SoftDeleteFile stamps a live file as trashed.
func (s *GormStore) SoftDeleteFile(ctx context.Context, fileID uint64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND trashed_at IS NULL", fileID).
		Update("trashed_at", &at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// SoftDeleteFolder stamps a live folder as trashed.
func (s *GormStore) SoftDeleteFolder(ctx context.Context, folderID uint64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&model.Folder{}).
		Where("id = ? AND trashed_at IS NULL", folderID).
		Update("trashed_at", &at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// RestoreFile clears a file's trash stamp and shelf life.
func (s *GormStore) RestoreFile(ctx context.Context, fileID uint64) error {
	result := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND trashed_at IS NOT NULL", fileID).
		Updates(map[string]interface{}{
			"trashed_at": nil,
			"shelf_life": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// RestoreFolder clears a folder's trash stamp.
func (s *GormStore) RestoreFolder(ctx context.Context, folderID uint64) error {
	result := s.db.WithContext(ctx).Model(&model.Folder{}).
		Where("id = ? AND trashed_at IS NOT NULL", folderID).
		Update("trashed_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// RestoreFolderCascade clears the trash stamps (and member shelf lives) of a
// folder and the given member files in one transaction: a failure restores
// nothing, so the whole action can be retried. A member that lost a
// concurrent restore is skipped; a folder that is no longer trashed aborts
// with not-found and rolls the members back.
func (s *GormStore) RestoreFolderCascade(ctx context.Context, folderID uint64, memberIDs []uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range memberIDs {
			err := tx.Model(&model.File{}).
				Where("id = ? AND trashed_at IS NOT NULL", id).
				Updates(map[string]interface{}{
					"trashed_at": nil,
					"shelf_life": nil,
				}).Error
			if err != nil {
				return err
			}
		}
		result := tx.Model(&model.Folder{}).
			Where("id = ? AND trashed_at IS NOT NULL", folderID).
			Update("trashed_at", nil)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return service.ErrNotFound
		}
		return nil
	})
}

// PurgeFileAccounted removes a file record and releases its bytes from the
// owner's counter in one transaction: both land or neither does, so a failed
// purge can be retried as a whole. The decrement is a single guarded UPDATE
// expression clamped at zero, safe against concurrent counter increments.
func (s *GormStore) PurgeFileAccounted(ctx context.Context, fileID, userID uint64, size int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&model.File{}, fileID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return service.ErrNotFound
		}
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			return mapErr(err)
		}
		if user.QuotaUsed < size {
			log.Printf("repo: quota counter clamp for user %d (used=%d, release=%d)", userID, user.QuotaUsed, size)
		}
		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			UpdateColumn("quota_used", gorm.Expr(
				"CASE WHEN quota_used >= ? THEN quota_used - ? ELSE 0 END", size, size)).Error
	})
}

// ForceDeleteFile removes a file record permanently.
func (s *GormStore) ForceDeleteFile(ctx context.Context, fileID uint64) error {
	result := s.db.WithContext(ctx).Delete(&model.File{}, fileID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// ForceDeleteFolder removes a folder record permanently.
func (s *GormStore) ForceDeleteFolder(ctx context.Context, folderID uint64) error {
	result := s.db.WithContext(ctx).Delete(&model.Folder{}, folderID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return service.ErrNotFound
	}
	return nil
}

// FilesPastShelfLife lists files whose shelf-life deadline has passed,
// trashed or not.
func (s *GormStore) FilesPastShelfLife(ctx context.Context, now time.Time) ([]model.File, error) {
	var files []model.File
	err := s.db.WithContext(ctx).
		Where("shelf_life IS NOT NULL AND shelf_life < ?", now).
		Find(&files).Error
	return files, err
}

// FilesTrashedBefore lists files trashed before the cutoff, all users.
func (s *GormStore) FilesTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.File, error) {
	var files []model.File
	err := s.db.WithContext(ctx).
		Where("trashed_at IS NOT NULL AND trashed_at < ?", cutoff).
		Find(&files).Error
	return files, err
}

// FoldersTrashedBefore lists folders trashed before the cutoff, all users.
func (s *GormStore) FoldersTrashedBefore(ctx context.Context, cutoff time.Time) ([]model.Folder, error) {
	var folders []model.Folder
	err := s.db.WithContext(ctx).
		Where("trashed_at IS NOT NULL AND trashed_at < ?", cutoff).
		Find(&folders).Error
	return folders, err
}
