package walletstatedb

import (
	"time"

	"gorm.io/gorm"
)

// SQLiteUMATransaction represents a UMA transaction row
type SQLiteUMATransaction struct {
	gorm.Model
	TxUID     string    `gorm:"uniqueIndex"`
	Type      string    `gorm:"index"` // send or receive
	Address   string    `gorm:"index"`
	Amount    float64
	Currency  string
	Status    string    `gorm:"index"` // pending, completed, failed
	Memo      string
	Timestamp time.Time `gorm:"index"`
	TxID      string
	Invoice   string
	Fees      float64
}

// SQLiteActivityLog represents an audit log row
type SQLiteActivityLog struct {
	gorm.Model
	LogUID    string    `gorm:"uniqueIndex"`
	Type      string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	Details   []byte    // JSON-encoded details map
	Status    string    `gorm:"index"` // pending, success, failed
}

// SQLiteRecipient represents a known UMA counterparty
type SQLiteRecipient struct {
	gorm.Model
	RecipientUID string `gorm:"uniqueIndex"`
	Name         string
	Address      string `gorm:"uniqueIndex"`
	Avatar       string
	IsOnline     bool
}

// SQLiteChallenge represents an auth challenge
type SQLiteChallenge struct {
	gorm.Model
	Challenge string    `gorm:"uniqueIndex"`
	Hash      string    `gorm:"uniqueIndex"`
	Status    string    `gorm:"index"` // unused, used, expired
	Npub      string    `gorm:"index"`
	CreatedAt time.Time `gorm:"index"`
	UsedAt    *time.Time
	ExpiredAt *time.Time
}
