package dto

import "time"

// FileView is the cached display projection for a file: record fields joined
// with blob metadata and an optional thumbnail URL.
type FileView struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	FileName  string     `json:"file_name"`
	Extension string     `json:"extension,omitempty"`
	Size      int64      `json:"size"`
	UUID      string     `json:"uuid"`
	FolderID  *uint64    `json:"folder_id,omitempty"`
	ShelfLife *time.Time `json:"shelf_life,omitempty"`
	ThumbURL  string     `json:"thumb_url,omitempty"`
}

// QuotaStatus reports a user's byte accounting.
type QuotaStatus struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// FolderView is the display record for a folder.
type FolderView struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	TrashedAt *time.Time `json:"trashed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TrashView is the recycle-bin listing: trashed folders plus trashed files
// that are not nested under one of those folders.
type TrashView struct {
	TrashLifespanDays int          `json:"trash_lifespan"`
	Folders           []FolderView `json:"folders"`
	Files             []FileView   `json:"files"`
}
