package models

import "time"

// PatternSetupOptions holds the shuffled symbol sets a user picks a pattern from.
type PatternSetupOptions struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;type:text"`
	User      *User     `json:"-" gorm:"foreignKey:UserID"`
	Phrases   []string  `json:"phrases" gorm:"serializer:json;type:text"`
	Images    []string  `json:"images" gorm:"serializer:json;type:text"`
	Icons     []string  `json:"icons" gorm:"serializer:json;type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsedSetupToken marks an emailed setup token as redeemed.
type UsedSetupToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	TokenID   string    `json:"token_id" gorm:"uniqueIndex;not null"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
}

// All lists every model the schema is migrated with.
func All() []any {
	return []any{&User{}, &PatternSetupOptions{}, &UsedSetupToken{}, &LogEntry{}}
}
