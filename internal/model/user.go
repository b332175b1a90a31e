package model

import "time"

// User is an account known to the auth service. Email is nil for anonymous
// and Telegram-only accounts.
type User struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Email        *string `gorm:"uniqueIndex"`
	DisplayName  string
	AvatarURL    string
	PasswordHash string
	TelegramID   *int64 `gorm:"uniqueIndex"`
	Anonymous    bool   `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
