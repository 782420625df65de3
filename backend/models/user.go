package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                string     `json:"id" gorm:"primaryKey;type:text"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Username          string     `json:"username" gorm:"uniqueIndex;not null"`
	Email             string     `json:"email" gorm:"uniqueIndex;not null"`
	Password          string     `json:"-"` // bcrypt hash, never serialize
	IsPatternSet      bool       `json:"is_pattern_set" gorm:"default:false"`
	SecurityPattern   *string    `json:"-"` // encoded selection, never serialize
	FailedAttempts    int        `json:"-" gorm:"default:0;not null"`
	LastFailedAttempt *time.Time `json:"-"`
}

// BeforeCreate assigns a random id when the caller left it empty.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
