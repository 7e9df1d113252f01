package walletstatedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements IndexedStore on top of GORM/SQLite.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens the SQLite database at dbPath and migrates the schema
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	err = db.AutoMigrate(
		&SQLiteUMATransaction{},
		&SQLiteActivityLog{},
		&SQLiteRecipient{},
		&SQLiteChallenge{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	log.Println("SQLite database initialized successfully")
	return &SQLiteStore{db: db}, nil
}

// SaveTransaction inserts or updates a UMA transaction by its unique id
func (s *SQLiteStore) SaveTransaction(tx UMATransaction) error {
	row := SQLiteUMATransaction{
		TxUID:     tx.ID,
		Type:      tx.Type,
		Address:   tx.Address,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Status:    tx.Status,
		Memo:      tx.Memo,
		Timestamp: tx.Timestamp,
		TxID:      tx.TxID,
		Invoice:   tx.Invoice,
		Fees:      tx.Fees,
	}

	var existing SQLiteUMATransaction
	err := s.db.Where("tx_uid = ?", tx.ID).First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		return s.db.Save(&row).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(&row).Error
}

// RecentTransactions returns up to limit transactions, newest first
func (s *SQLiteStore) RecentTransactions(limit int) ([]UMATransaction, error) {
	var rows []SQLiteUMATransaction
	err := s.db.Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	txs := make([]UMATransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, rowToTransaction(row))
	}
	return txs, nil
}

// TransactionsByType returns up to limit send or receive transactions, newest first
func (s *SQLiteStore) TransactionsByType(txType string, limit int) ([]UMATransaction, error) {
	var rows []SQLiteUMATransaction
	err := s.db.Where("type = ?", txType).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	txs := make([]UMATransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, rowToTransaction(row))
	}
	return txs, nil
}

func rowToTransaction(row SQLiteUMATransaction) UMATransaction {
	return UMATransaction{
		ID:        row.TxUID,
		Type:      row.Type,
		Address:   row.Address,
		Amount:    row.Amount,
		Currency:  row.Currency,
		Status:    row.Status,
		Memo:      row.Memo,
		Timestamp: row.Timestamp,
		TxID:      row.TxID,
		Invoice:   row.Invoice,
		Fees:      row.Fees,
	}
}

// SaveActivity appends an audit log entry
func (s *SQLiteStore) SaveActivity(entry ActivityLog) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal activity details: %v", err)
		}
	}

	row := SQLiteActivityLog{
		LogUID:    entry.ID,
		Type:      entry.Type,
		Timestamp: entry.Timestamp,
		Details:   details,
		Status:    entry.Status,
	}
	return s.db.Create(&row).Error
}

// RecentActivities returns up to limit audit entries, newest first
func (s *SQLiteStore) RecentActivities(limit int) ([]ActivityLog, error) {
	var rows []SQLiteActivityLog
	err := s.db.Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	logs := make([]ActivityLog, 0, len(rows))
	for _, row := range rows {
		entry := ActivityLog{
			ID:        row.LogUID,
			Type:      row.Type,
			Timestamp: row.Timestamp,
			Status:    row.Status,
		}
		if len(row.Details) > 0 {
			if err := json.Unmarshal(row.Details, &entry.Details); err != nil {
				log.Printf("Skipping malformed activity details for %s: %v", row.LogUID, err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// SaveRecipient inserts or updates a recipient keyed by its UMA address
func (s *SQLiteStore) SaveRecipient(recipient Recipient) error {
	row := SQLiteRecipient{
		RecipientUID: recipient.ID,
		Name:         recipient.Name,
		Address:      recipient.Address,
		Avatar:       recipient.Avatar,
		IsOnline:     recipient.IsOnline,
	}

	var existing SQLiteRecipient
	err := s.db.Where("address = ?", recipient.Address).First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		return s.db.Save(&row).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(&row).Error
}

// Recipients returns all known recipients
func (s *SQLiteStore) Recipients() ([]Recipient, error) {
	var rows []SQLiteRecipient
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(rows))
	for _, row := range rows {
		recipients = append(recipients, Recipient{
			ID:       row.RecipientUID,
			Name:     row.Name,
			Address:  row.Address,
			Avatar:   row.Avatar,
			IsOnline: row.IsOnline,
		})
	}
	return recipients, nil
}

// FindRecipientByAddress looks a recipient up by UMA address; nil when unknown
func (s *SQLiteStore) FindRecipientByAddress(address string) (*Recipient, error) {
	var row SQLiteRecipient
	err := s.db.Where("address = ?", address).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Recipient{
		ID:       row.RecipientUID,
		Name:     row.Name,
		Address:  row.Address,
		Avatar:   row.Avatar,
		IsOnline: row.IsOnline,
	}, nil
}

// SaveChallenge saves an auth challenge
func (s *SQLiteStore) SaveChallenge(challenge Challenge) error {
	row := SQLiteChallenge{
		Challenge: challenge.Challenge,
		Hash:      challenge.Hash,
		Status:    challenge.Status,
		Npub:      challenge.Npub,
		CreatedAt: challenge.CreatedAt,
	}
	return s.db.Create(&row).Error
}

// GetChallenge retrieves a challenge by its hash
func (s *SQLiteStore) GetChallenge(hash string) (*Challenge, error) {
	var row SQLiteChallenge
	err := s.db.Where("hash = ?", hash).First(&row).Error
	if err != nil {
		return nil, err
	}

	challenge := Challenge{
		Challenge: row.Challenge,
		Hash:      row.Hash,
		Status:    row.Status,
		Npub:      row.Npub,
		CreatedAt: row.CreatedAt,
	}
	if row.UsedAt != nil {
		challenge.UsedAt = *row.UsedAt
	}
	if row.ExpiredAt != nil {
		challenge.ExpiredAt = *row.ExpiredAt
	}
	return &challenge, nil
}

// MarkChallengeAsUsed marks a challenge used so it cannot be replayed
func (s *SQLiteStore) MarkChallengeAsUsed(hash string) error {
	now := time.Now()
	return s.db.Model(&SQLiteChallenge{}).
		Where("hash = ?", hash).
		Updates(map[string]interface{}{"status": "used", "used_at": &now}).Error
}

// ExpireOldChallenges expires unused challenges older than ten minutes
func (s *SQLiteStore) ExpireOldChallenges() error {
	now := time.Now()
	cutoff := now.Add(-10 * time.Minute)
	return s.db.Model(&SQLiteChallenge{}).
		Where("status = ? AND created_at < ?", "unused", cutoff).
		Updates(map[string]interface{}{"status": "expired", "expired_at": &now}).Error
}

// ClearAll removes every row from the indexed stores
func (s *SQLiteStore) ClearAll() error {
	for _, model := range []interface{}{
		&SQLiteUMATransaction{},
		&SQLiteActivityLog{},
		&SQLiteRecipient{},
		&SQLiteChallenge{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
