package dto

// Entity kinds accepted by the trash endpoints.
const (
	EntityFile   = "file"
	EntityFolder = "folder"
)

// EntityRef names a file or folder in a trash action.
type EntityRef struct {
	Kind string `json:"kind" binding:"required,oneof=file folder"`
	ID   uint64 `json:"id" binding:"required"`
}

type RegisterRequest struct {
	UserName string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"required,email"`
}

type LoginRequest struct {
	UserName string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UploadInput is the metadata handed to the accounting path after the blob
// bytes are in object storage.
type UploadInput struct {
	BlobID        string
	Name          string
	Extension     string
	Size          int64
	FolderID      *uint64
	ShelfLifeDays int
}

type FileListRequest struct {
	FolderID *uint64 `json:"folder_id"`
}

// UpdateFileRequest renames a file, moves it, or adjusts its shelf life.
// A negative ShelfLifeDays clears the deadline.
type UpdateFileRequest struct {
	Name          string  `json:"name"`
	FolderID      *uint64 `json:"folder_id"`
	ShelfLifeDays *int    `json:"shelf_life"`
}

type CreateFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

type TrashActionRequest struct {
	Items []EntityRef `json:"items" binding:"required,dive"`
}
