package models

import "time"

// PointTransaction is an append-only audit record of a single point award.
type PointTransaction struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	AccountID     string    `gorm:"size:64;not null;index:idx_pt_account_created,priority:1;index:idx_pt_account_kind,priority:1" json:"account_id"`
	Amount        int       `gorm:"not null" json:"amount"`
	Kind          string    `gorm:"size:32;not null;index:idx_pt_account_kind,priority:2" json:"kind"`
	Description   string    `gorm:"size:255" json:"description"`
	ReferenceID   string    `gorm:"size:64" json:"reference_id,omitempty"`
	ReferenceType string    `gorm:"size:32" json:"reference_type,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index:idx_pt_account_created,priority:2" json:"created_at"`
}
