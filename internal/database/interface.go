package walletstatedb

// MaxRetainedItems bounds every persisted list so storage cannot grow without limit.
const MaxRetainedItems = 100

// FlatStore is the key-value tier: single-record blobs and capped,
// newest-first lists. Backed by Graviton.
type FlatStore interface {
	SaveAccount(account Account) error
	LoadAccount() (*Account, error)
	ClearAccount() error

	SaveWalletBalance(balance WalletBalance) error
	LoadWalletBalance() (*WalletBalance, error)

	SaveUMABalance(balance UMABalance) error
	LoadUMABalance() (*UMABalance, error)

	SaveSettings(settings Settings) error
	LoadSettings() (*Settings, error)

	SaveMnemonic(mnemonic string) error
	LoadMnemonic() (string, error)
	ClearMnemonic() error

	SaveTransfers(transfers []Transfer) error
	LoadTransfers() ([]Transfer, error)

	SaveInvoices(invoices []LightningInvoice) error
	LoadInvoices() ([]LightningInvoice, error)

	SaveSendRequests(requests []LightningSendRequest) error
	LoadSendRequests() ([]LightningSendRequest, error)

	SaveDepositAddresses(addresses []string) error
	LoadDepositAddresses() ([]string, error)

	ClearAll() error
}

// IndexedStore is the queryable tier: one table per entity with a secondary
// index on timestamp, supporting most-recent-N retrieval. Backed by SQLite.
type IndexedStore interface {
	SaveTransaction(tx UMATransaction) error
	RecentTransactions(limit int) ([]UMATransaction, error)
	TransactionsByType(txType string, limit int) ([]UMATransaction, error)

	SaveActivity(entry ActivityLog) error
	RecentActivities(limit int) ([]ActivityLog, error)

	SaveRecipient(recipient Recipient) error
	Recipients() ([]Recipient, error)
	FindRecipientByAddress(address string) (*Recipient, error)

	SaveChallenge(challenge Challenge) error
	GetChallenge(hash string) (*Challenge, error)
	MarkChallengeAsUsed(hash string) error
	ExpireOldChallenges() error

	ClearAll() error
}

// capNewestFirst truncates a newest-first list to the retention cap.
func capNewestFirst[T any](items []T) []T {
	if len(items) > MaxRetainedItems {
		return items[:MaxRetainedItems]
	}
	return items
}
