package models

import "time"

// Account stores one managed platform account: its label and credential.
// The token is only ever read to dial a session; it is never logged.
type Account struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Label     string `gorm:"size:64;not null;uniqueIndex"`
	Token     string `gorm:"size:256;not null"`
	CreatedAt time.Time
}
