package uma

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/logger"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{2,32}$`)

// Service manages the UMA side of the wallet: the local account, the
// transaction and activity history, known recipients, and the payment
// flow. It writes single records to the flat store and queryable history
// to the indexed store.
type Service struct {
	flat    walletstatedb.FlatStore
	indexed walletstatedb.IndexedStore
	client  *ProtocolClient

	flowState
}

// NewService wires the UMA service over both storage tiers and a protocol
// client for outgoing lookups.
func NewService(flat walletstatedb.FlatStore, indexed walletstatedb.IndexedStore, client *ProtocolClient) *Service {
	s := &Service{
		flat:    flat,
		indexed: indexed,
		client:  client,
	}
	s.failurePolicy = viper.GetString("confirm_failure_policy")
	if s.failurePolicy == "" {
		s.failurePolicy = PolicyAbandon
	}
	return s
}

// CreateAccount creates and persists a local UMA account for the given
// username. The address takes the $username@domain form with the
// configured VASP domain.
func (s *Service) CreateAccount(username string) (*walletstatedb.Account, error) {
	username = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(username, "$")))
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("invalid username %q: use 2-32 lowercase letters, digits, or _.-", username)
	}

	domain := viper.GetString("vasp_domain")
	account := walletstatedb.Account{
		ID:        uuid.New().String(),
		Address:   fmt.Sprintf("$%s@%s", username, domain),
		Username:  username,
		Domain:    domain,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	if err := s.flat.SaveAccount(account); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}
	s.LogActivity(walletstatedb.ActivityLNURLPRequest, walletstatedb.ActivitySuccess, map[string]interface{}{
		"action":  "account_created",
		"address": account.Address,
	})
	return &account, nil
}

// Account returns the persisted account, or nil when none exists.
func (s *Service) Account() (*walletstatedb.Account, error) {
	return s.flat.LoadAccount()
}

// ClearAccount removes the persisted account.
func (s *Service) ClearAccount() error {
	return s.flat.ClearAccount()
}

// UpdateBalance persists the UMA-facing balance view.
func (s *Service) UpdateBalance(balance walletstatedb.UMABalance) error {
	balance.LastUpdated = time.Now()
	return s.flat.SaveUMABalance(balance)
}

// Balance returns the persisted UMA balance, or a zero balance in the
// configured currency when none has been saved yet.
func (s *Service) Balance() (*walletstatedb.UMABalance, error) {
	bal, err := s.flat.LoadUMABalance()
	if err != nil {
		return nil, err
	}
	if bal == nil {
		bal = &walletstatedb.UMABalance{FiatCurrency: "USD"}
	}
	return bal, nil
}

// AddTransaction records a send or receive in the indexed history.
func (s *Service) AddTransaction(tx walletstatedb.UMATransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}
	return s.indexed.SaveTransaction(tx)
}

// RecentTransactions returns the newest transactions up to limit.
func (s *Service) RecentTransactions(limit int) ([]walletstatedb.UMATransaction, error) {
	if limit <= 0 || limit > walletstatedb.MaxRetainedItems {
		limit = walletstatedb.MaxRetainedItems
	}
	return s.indexed.RecentTransactions(limit)
}

// TransactionsByType returns the newest send or receive transactions.
func (s *Service) TransactionsByType(txType string, limit int) ([]walletstatedb.UMATransaction, error) {
	if limit <= 0 || limit > walletstatedb.MaxRetainedItems {
		limit = walletstatedb.MaxRetainedItems
	}
	return s.indexed.TransactionsByType(txType, limit)
}

// LogActivity appends a protocol step to the audit trail. Logging never
// fails the operation being audited; errors go to the logger.
func (s *Service) LogActivity(entryType, status string, details map[string]interface{}) {
	entry := walletstatedb.ActivityLog{
		ID:        uuid.New().String(),
		Type:      entryType,
		Timestamp: time.Now(),
		Details:   details,
		Status:    status,
	}
	if err := s.indexed.SaveActivity(entry); err != nil {
		logger.Error("failed to record activity entry:", entryType, err)
	}
}

// RecentActivities returns the newest audit entries up to limit.
func (s *Service) RecentActivities(limit int) ([]walletstatedb.ActivityLog, error) {
	if limit <= 0 || limit > walletstatedb.MaxRetainedItems {
		limit = walletstatedb.MaxRetainedItems
	}
	return s.indexed.RecentActivities(limit)
}

// AddRecipient saves a counterparty. An existing recipient with the same
// address is updated in place.
func (s *Service) AddRecipient(recipient walletstatedb.Recipient) error {
	if strings.TrimSpace(recipient.Address) == "" {
		return fmt.Errorf("recipient address is required")
	}
	if recipient.ID == "" {
		recipient.ID = uuid.New().String()
	}
	return s.indexed.SaveRecipient(recipient)
}

// Recipients lists all known counterparties.
func (s *Service) Recipients() ([]walletstatedb.Recipient, error) {
	return s.indexed.Recipients()
}

// RecipientByAddress finds a counterparty by UMA address, nil when unknown.
func (s *Service) RecipientByAddress(address string) (*walletstatedb.Recipient, error) {
	return s.indexed.FindRecipientByAddress(address)
}

// SeedDefaultRecipients installs the demo counterparties when the
// recipient list is empty. Used on first run so the send flow has
// someone to pay.
func (s *Service) SeedDefaultRecipients() error {
	existing, err := s.indexed.Recipients()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	defaults := []walletstatedb.Recipient{
		{Name: "Alice Johnson", Address: "$alice@vasp1.com", IsOnline: true},
		{Name: "Bob Smith", Address: "$bob@vasp2.com", IsOnline: true},
		{Name: "Carol Davis", Address: "$carol@vasp1.com"},
		{Name: "David Wilson", Address: "$david@vasp3.com", IsOnline: true},
		{Name: "Emma Brown", Address: "$emma@vasp2.com"},
	}
	for _, r := range defaults {
		r.ID = uuid.New().String()
		if err := s.indexed.SaveRecipient(r); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll wipes both tiers: the flat wallet state and the indexed
// history. Used by the reset command.
func (s *Service) ClearAll() error {
	if err := s.flat.ClearAll(); err != nil {
		return fmt.Errorf("clearing wallet state: %w", err)
	}
	if err := s.indexed.ClearAll(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
