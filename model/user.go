package model

import (
	"time"
)

type User struct {
	ID uint64 `gorm:"primaryKey"`

	UserName string `gorm:"column:user_name;type:varchar(50);not null;unique"`

	Password string `gorm:"column:pass_word;type:varchar(255);not null" json:"-"`

	Email string `gorm:"column:email;type:varchar(255);not null;unique"`

	QuotaLimit int64 `gorm:"column:quota_limit;not null;default:0"` // 容量管理
	QuotaUsed  int64 `gorm:"column:quota_used;not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (User) TableName() string {
	return "user_db"
}
