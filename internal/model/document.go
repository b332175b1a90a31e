package model

import "time"

// Document is one stored record of a collection. Body holds the JSON fields.
type Document struct {
	Collection string `gorm:"primaryKey;size:255"`
	ID         string `gorm:"primaryKey;size:36"`
	OwnerID    string `gorm:"index"`
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
