package db

import (
	"errors"
	"fmt"

	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// ListAccounts returns all stored accounts in creation order.
func ListAccounts(gdb *gorm.DB) ([]models.Account, error) {
	var accounts []models.Account
	if err := gdb.Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("db: list accounts: %w", err)
	}
	return accounts, nil
}

// AddAccount stores a new account. The label must be unique.
func AddAccount(gdb *gorm.DB, label, token string) (*models.Account, error) {
	acct := models.Account{Label: label, Token: token}
	if err := gdb.Create(&acct).Error; err != nil {
		return nil, fmt.Errorf("db: add account %q: %w", label, err)
	}
	return &acct, nil
}

// RemoveAccount deletes the account with the given label. Returns false if
// no such account exists.
func RemoveAccount(gdb *gorm.DB, label string) (bool, error) {
	res := gdb.Where("label = ?", label).Delete(&models.Account{})
	if res.Error != nil {
		return false, fmt.Errorf("db: remove account %q: %w", label, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AddProtectedID stores a whitelist entry. Duplicate (kind, target) pairs
// are a no-op.
func AddProtectedID(gdb *gorm.DB, kind, targetID, note string) error {
	entry := models.ProtectedID{Kind: kind, TargetID: targetID, Note: note}
	err := gdb.Create(&entry).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("db: protect %s %s: %w", kind, targetID, err)
	}
	return nil
}

// RemoveProtectedID deletes a whitelist entry. Returns false if absent.
func RemoveProtectedID(gdb *gorm.DB, kind, targetID string) (bool, error) {
	res := gdb.Where("kind = ? AND target_id = ?", kind, targetID).Delete(&models.ProtectedID{})
	if res.Error != nil {
		return false, fmt.Errorf("db: unprotect %s %s: %w", kind, targetID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListProtectedIDs returns all whitelist entries of one kind.
func ListProtectedIDs(gdb *gorm.DB, kind string) ([]models.ProtectedID, error) {
	var entries []models.ProtectedID
	if err := gdb.Where("kind = ?", kind).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("db: list protected %s: %w", kind, err)
	}
	return entries, nil
}

// ProtectedTargets returns just the target ids of one whitelist kind, in the
// shape batch jobs consume.
func ProtectedTargets(gdb *gorm.DB, kind string) ([]string, error) {
	entries, err := ListProtectedIDs(gdb, kind)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.TargetID)
	}
	return ids, nil
}

// TopScores returns the highest-scoring members of a guild, best first.
func TopScores(gdb *gorm.DB, guildID string, limit int) ([]models.Score, error) {
	var scores []models.Score
	err := gdb.Where("guild_id = ?", guildID).
		Order("points DESC").
		Limit(limit).
		Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("db: top scores for %s: %w", guildID, err)
	}
	return scores, nil
}

// UpsertScore sets a member's points in a guild's leaderboard.
func UpsertScore(gdb *gorm.DB, guildID, userID string, points int64) error {
	var score models.Score
	err := gdb.Where("guild_id = ? AND user_id = ?", guildID, userID).First(&score).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		score = models.Score{GuildID: guildID, UserID: userID, Points: points}
		if err := gdb.Create(&score).Error; err != nil {
			return fmt.Errorf("db: create score %s/%s: %w", guildID, userID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("db: lookup score %s/%s: %w", guildID, userID, err)
	}
	score.Points = points
	if err := gdb.Save(&score).Error; err != nil {
		return fmt.Errorf("db: update score %s/%s: %w", guildID, userID, err)
	}
	return nil
}
