package models

import "time"

// Score is one leaderboard row for the scheduled role-sync job. Points are
// maintained externally; the job only reads the ranking.
type Score struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	GuildID   string `gorm:"size:64;not null;index:idx_guild_user,unique"`
	UserID    string `gorm:"size:64;not null;index:idx_guild_user,unique"`
	Points    int64  `gorm:"not null;default:0;index"`
	UpdatedAt time.Time
}
