package service

import (
	"context"
	"log"
	"strings"
	"time"

	"CloudKeep/internal/dto"
	"CloudKeep/model"
	"CloudKeep/utils"
)

// FileService carries the upload-accounting and listing paths the HTTP
// layer calls into.
type FileService struct {
	store  RecordStore
	cache  *MetadataCache
	ledger *QuotaLedger
}

// NewFileService wires the file service.
func NewFileService(store RecordStore, cache *MetadataCache, ledger *QuotaLedger) *FileService {
	return &FileService{store: store, cache: cache, ledger: ledger}
}

func normalizeFolderID(folderID *uint64) *uint64 {
	if folderID == nil || *folderID == 0 {
		return nil
	}
	return folderID
}

func (s *FileService) requireLiveFolder(ctx context.Context, userID uint64, folderID uint64) (*model.Folder, error) {
	folder, err := s.store.FindFolder(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if folder.Trashed() {
		return nil, ErrNotFound
	}
	return folder, nil
}

// UploadAccounted records an uploaded file under quota: reserves the bytes,
// creates the record and primes the cache with a fresh projection. The blob
// bytes are already in object storage when this runs; on a failed insert the
// reservation is released and the caller cleans up the blob.
func (s *FileService) UploadAccounted(ctx context.Context, userID uint64, in dto.UploadInput) (*dto.FileView, error) {
	folderID := normalizeFolderID(in.FolderID)
	if folderID != nil {
		if _, err := s.requireLiveFolder(ctx, userID, *folderID); err != nil {
			return nil, err
		}
	}

	if err := s.ledger.Reserve(ctx, userID, in.Size); err != nil {
		return nil, err
	}

	blobID := in.BlobID
	if blobID == "" {
		blobID = utils.NewBlobID()
	}
	file := &model.File{
		UserID:    userID,
		FolderID:  folderID,
		UUID:      blobID,
		Name:      strings.ReplaceAll(in.Name, " ", "_"),
		Extension: in.Extension,
		Size:      in.Size,
	}
	if in.ShelfLifeDays > 0 {
		deadline := time.Now().AddDate(0, 0, in.ShelfLifeDays)
		file.ShelfLife = &deadline
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		if rbErr := s.ledger.Decrease(ctx, userID, in.Size); rbErr != nil {
			log.Printf("files: release reservation failed: %v", rbErr)
		}
		return nil, err
	}

	view := s.cache.BuildView(ctx, file)
	if err := s.cache.Put(ctx, view, false); err != nil {
		log.Printf("files: prime cache for %d failed: %v", file.ID, err)
	}
	return view, nil
}

// UpdateFile renames a file, moves it to another folder, or adjusts its
// shelf life (negative days clears the deadline). The cache entry is
// replaced with a rebuilt projection.
func (s *FileService) UpdateFile(ctx context.Context, userID, fileID uint64, req dto.UpdateFileRequest) (*dto.FileView, error) {
	file, err := s.store.FindFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Trashed() {
		return nil, ErrNotFound
	}

	fields := map[string]interface{}{}
	if req.Name != "" {
		fields["name"] = strings.ReplaceAll(req.Name, " ", "_")
	}
	if folderID := normalizeFolderID(req.FolderID); folderID != nil {
		if _, err := s.requireLiveFolder(ctx, userID, *folderID); err != nil {
			return nil, err
		}
		fields["folder_id"] = *folderID
	}
	if req.ShelfLifeDays != nil {
		if *req.ShelfLifeDays < 0 {
			fields["shelf_life"] = nil
		} else if *req.ShelfLifeDays > 0 {
			fields["shelf_life"] = time.Now().AddDate(0, 0, *req.ShelfLifeDays)
		}
	}
	if len(fields) > 0 {
		if err := s.store.UpdateFile(ctx, file.ID, fields); err != nil {
			return nil, err
		}
	}

	file, err = s.store.FindFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	view := s.cache.BuildView(ctx, file)
	if err := s.cache.Invalidate(ctx, file.ID); err != nil {
		log.Printf("files: invalidate %d failed: %v", file.ID, err)
	}
	if err := s.cache.Put(ctx, view, false); err != nil {
		log.Printf("files: refresh cache for %d failed: %v", file.ID, err)
	}
	return view, nil
}

// ListLive returns projections for a user's live files under one folder
// (nil for the root), served through the metadata cache.
func (s *FileService) ListLive(ctx context.Context, userID uint64, folderID *uint64) ([]dto.FileView, error) {
	folderID = normalizeFolderID(folderID)
	if folderID != nil {
		if _, err := s.requireLiveFolder(ctx, userID, *folderID); err != nil {
			return nil, err
		}
	}
	files, err := s.store.LiveFilesByOwner(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(files))
	for i := range files {
		ids = append(ids, files[i].ID)
	}
	return s.cache.LoadMany(ctx, ids, false)
}

// ListLiveFolders returns a user's live folders for the home view.
func (s *FileService) ListLiveFolders(ctx context.Context, userID uint64) ([]dto.FolderView, error) {
	folders, err := s.store.FoldersByOwner(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	views := make([]dto.FolderView, 0, len(folders))
	for i := range folders {
		views = append(views, dto.FolderView{
			ID:        folders[i].ID,
			Name:      folders[i].Name,
			CreatedAt: folders[i].CreatedAt,
		})
	}
	return views, nil
}

// CreateFolder creates a folder with a name unique among the owner's live
// folders.
func (s *FileService) CreateFolder(ctx context.Context, userID uint64, name string) (*dto.FolderView, error) {
	count, err := s.store.CountLiveFolderName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrNameTaken
	}
	folder := &model.Folder{UserID: userID, Name: name}
	if err := s.store.CreateFolder(ctx, folder); err != nil {
		return nil, err
	}
	return &dto.FolderView{ID: folder.ID, Name: folder.Name, CreatedAt: folder.CreatedAt}, nil
}
