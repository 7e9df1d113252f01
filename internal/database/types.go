package walletstatedb

import "time"

// Status values shared by transfers, invoices, send requests and UMA transactions.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPaid      = "paid"
	StatusExpired   = "expired"
)

// Activity log status values
const (
	ActivityPending = "pending"
	ActivitySuccess = "success"
	ActivityFailed  = "failed"
)

// Activity log entry types, one per protocol step
const (
	ActivityLNURLPRequest   = "lnurlp_request"
	ActivityLNURLPResponse  = "lnurlp_response"
	ActivityPayRequest      = "pay_request"
	ActivityPayResponse     = "pay_response"
	ActivityPaymentSent     = "payment_sent"
	ActivityPaymentReceived = "payment_received"
	ActivityComplianceCheck = "compliance_check"
)

// Account is the local UMA account, one per wallet profile.
type Account struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"` // Format: $username@domain.com
	Username  string    `json:"username"`
	Domain    string    `json:"domain"`
	PublicKey string    `json:"public_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// WalletBalance is the Spark-side balance: sats plus per-token balances.
type WalletBalance struct {
	Sats          uint64            `json:"sats"`
	TokenBalances map[string]uint64 `json:"token_balances,omitempty"`
	LastUpdated   time.Time         `json:"last_updated"`
}

// UMABalance is the fiat-facing balance shown alongside the UMA account.
type UMABalance struct {
	FiatBalance      float64   `json:"fiat_balance"`
	FiatCurrency     string    `json:"fiat_currency"`
	BTCBalance       float64   `json:"btc_balance"`
	LightningBalance int64     `json:"lightning_balance"` // sats
	LastUpdated      time.Time `json:"last_updated"`
}

// Settings holds the non-secret configuration persisted with the wallet.
type Settings struct {
	Network     string `json:"network"`
	VaspDomain  string `json:"vasp_domain"`
	APIEndpoint string `json:"api_endpoint"`
}

// Transfer is a Spark transfer record.
type Transfer struct {
	ID              string    `json:"id"`
	AmountSats      int64     `json:"amount_sats"`
	ReceiverAddress string    `json:"receiver_address"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	TxID            string    `json:"tx_id,omitempty"`
}

// LightningInvoice is a Lightning receive request created by this wallet.
type LightningInvoice struct {
	ID             string    `json:"id"`
	EncodedInvoice string    `json:"encoded_invoice"`
	AmountSats     int64     `json:"amount_sats"`
	Memo           string    `json:"memo,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// LightningSendRequest is an outgoing Lightning payment attempt.
type LightningSendRequest struct {
	ID         string `json:"id"`
	Invoice    string `json:"invoice"`
	MaxFeeSats int64  `json:"max_fee_sats"`
	Status     string `json:"status"`
}

// UMATransaction records a send or receive through the UMA protocol.
type UMATransaction struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "send" or "receive"
	Address   string    `json:"uma_address"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TxID      string    `json:"tx_id,omitempty"`
	Invoice   string    `json:"invoice,omitempty"`
	Fees      float64   `json:"fees,omitempty"`
}

// ActivityLog is an append-only audit entry for a protocol step.
type ActivityLog struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Status    string                 `json:"status"`
}

// Recipient is a known counterparty with a UMA address.
type Recipient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"uma_address"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"is_online,omitempty"`
}

// Challenge is an auth challenge for the wallet API login flow.
type Challenge struct {
	Challenge string    `json:"challenge"`
	Hash      string    `json:"hash"`
	Status    string    `json:"status"` // "unused", "used", "expired"
	Npub      string    `json:"npub"`
	CreatedAt time.Time `json:"created_at"`
	UsedAt    time.Time `json:"used_at,omitempty"`
	ExpiredAt time.Time `json:"expired_at,omitempty"`
}
