package models

import "time"

// Whitelist kinds. Each batch job consumes the kind that matches its
// collection.
const (
	ProtectChannel = "channel"
	ProtectFriend  = "friend"
	ProtectGuild   = "guild"
)

// ProtectedID is one whitelist entry: a platform id a batch job must never
// act on.
type ProtectedID struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"size:16;not null;index:idx_kind_target,unique"`
	TargetID  string `gorm:"size:64;not null;index:idx_kind_target,unique"`
	Note      string `gorm:"size:128"`
	CreatedAt time.Time
}
