package models

import "time"

// DailyCheckIn stores one row per account per calendar day.
// Day is the "2006-01-02" form in the streak timezone, so equality never depends on DATE column handling.
type DailyCheckIn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"size:64;not null;uniqueIndex:idx_checkin_account_day,priority:1" json:"account_id"`
	Day       string    `gorm:"size:10;not null;uniqueIndex:idx_checkin_account_day,priority:2" json:"day"`
	CreatedAt time.Time `json:"created_at"`
}
