package model

import "time"

type Folder struct {
	ID uint64 `gorm:"primaryKey" json:"id,omitempty"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id,omitempty"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	Name string `gorm:"column:name;size:255;not null" json:"name,omitempty"`

	// TrashedAt is set while the folder sits in the recycle bin.
	TrashedAt *time.Time `gorm:"column:trashed_at;index" json:"trashed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Folder) TableName() string {
	return "folder"
}

// Trashed reports whether the folder is currently soft-deleted.
func (f *Folder) Trashed() bool {
	return f.TrashedAt != nil
}
