package model

import "time"

type File struct {
	ID uint64 `gorm:"primaryKey" json:"id,omitempty"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id,omitempty"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	FolderID *uint64 `gorm:"column:folder_id;index" json:"folder_id,omitempty"`
	Folder   *Folder `gorm:"foreignKey:FolderID;references:ID" json:"-"`

	// UUID is the opaque blob reference in object storage.
	UUID string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid,omitempty"`

	Name      string `gorm:"column:name;size:255;not null" json:"name,omitempty"`
	Extension string `gorm:"column:extension;size:32;not null;default:''" json:"extension,omitempty"`

	Size int64 `gorm:"column:size;not null;default:0" json:"size,omitempty"`

	// ShelfLife purges the file when it passes, trashed or not.
	ShelfLife *time.Time `gorm:"column:shelf_life;index" json:"shelf_life,omitempty"`

	// TrashedAt is set while the file sits in the recycle bin.
	TrashedAt *time.Time `gorm:"column:trashed_at;index" json:"trashed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (File) TableName() string {
	return "file"
}

// Trashed reports whether the file is currently soft-deleted.
func (f *File) Trashed() bool {
	return f.TrashedAt != nil
}

/*
关于数据库字段中指针与非指针的用法
FolderID 对于根目录下的文件为空 所以使用指针 TrashedAt 与 ShelfLife 同理
User 为强关联字段 必须使用值类型
*/
