package models

import "time"

// Badge is a catalog entry. Name is the award key.
type Badge struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Description  string    `gorm:"size:255" json:"description"`
	PointsReward int       `gorm:"not null;default:0" json:"points_reward"`
	Category     string    `gorm:"size:16;not null;index" json:"category"`
	Threshold    int       `gorm:"not null;default:0" json:"threshold"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountBadge records ownership; (AccountID, BadgeID) is unique.
type AccountBadge struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  string    `gorm:"size:64;not null;uniqueIndex:idx_account_badge,priority:1" json:"account_id"`
	BadgeID    uint      `gorm:"not null;uniqueIndex:idx_account_badge,priority:2" json:"badge_id"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
	Badge      Badge     `gorm:"foreignKey:BadgeID" json:"badge"`
}
