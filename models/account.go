package models

import (
	"time"

	"gorm.io/gorm"
)

// GamificationAccount holds the derived gamification state of one platform account.
// Level always mirrors the level table entry for TotalPoints.
type GamificationAccount struct {
	AccountID      string    `gorm:"primaryKey;size:64" json:"account_id"`
	TotalPoints    int       `gorm:"not null;default:0" json:"total_points"`
	Level          int       `gorm:"not null;default:1" json:"level"`
	CurrentStreak  int       `gorm:"not null;default:0;index" json:"current_streak"`
	LongestStreak  int       `gorm:"not null;default:0" json:"longest_streak"`
	LastCheckInDay string    `gorm:"size:10" json:"last_check_in_day"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName keeps the gamification state apart from the platform's own accounts table.
func (GamificationAccount) TableName() string {
	return "accounts_gamification"
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (a *GamificationAccount) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if a.Level == 0 {
		a.Level = 1
	}
	return nil
}
