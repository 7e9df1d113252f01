package spark

import "time"

// Exit speeds accepted by the withdraw call
const (
	ExitSpeedFast   = "FAST"
	ExitSpeedMedium = "MEDIUM"
	ExitSpeedSlow   = "SLOW"
)

// TransferStatusCompleted is the terminal status reported for settled transfers
const TransferStatusCompleted = "TRANSFER_STATUS_COMPLETED"

// Balance is the wallet balance as reported by the Spark service.
type Balance struct {
	Sats          uint64                  `json:"balance"`
	TokenBalances map[string]TokenBalance `json:"token_balances,omitempty"`
}

// TokenBalance carries a token amount plus its metadata.
type TokenBalance struct {
	Balance uint64 `json:"balance"`
	Name    string `json:"token_name,omitempty"`
	Ticker  string `json:"token_ticker,omitempty"`
}

// TransferResult is the service's record of a completed transfer.
type TransferResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TransferRecord is a historical transfer as listed by the service.
type TransferRecord struct {
	ID              string    `json:"id"`
	AmountSats      int64     `json:"amount_sats"`
	ReceiverAddress string    `json:"receiver_spark_address"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	TxID            string    `json:"tx_id,omitempty"`
}

// TransfersPage is one page of transfer history.
type TransfersPage struct {
	Transfers []TransferRecord `json:"transfers"`
	Offset    int              `json:"offset"`
}

// InvoiceParams are the inputs for creating a Lightning invoice.
type InvoiceParams struct {
	AmountSats    int64  `json:"amount_sats"`
	Memo          string `json:"memo,omitempty"`
	ExpirySeconds int    `json:"expiry_seconds,omitempty"`
}

// Invoice is a created Lightning receive request.
type Invoice struct {
	ID             string `json:"id"`
	EncodedInvoice string `json:"encoded_invoice"`
}

// PayInvoiceParams are the inputs for paying a Lightning invoice.
type PayInvoiceParams struct {
	Invoice    string `json:"invoice"`
	MaxFeeSats int64  `json:"max_fee_sats"`
}

// Payment is the result of a dispatched Lightning payment.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ClaimQuote is a signed quote for claiming a static deposit.
type ClaimQuote struct {
	TransactionID    string `json:"transaction_id"`
	CreditAmountSats int64  `json:"credit_amount_sats"`
	Signature        string `json:"signature"`
	OutputIndex      int    `json:"output_index"`
}

// WithdrawParams are the inputs for a cooperative on-chain exit.
type WithdrawParams struct {
	OnchainAddress                string `json:"onchain_address"`
	ExitSpeed                     string `json:"exit_speed"`
	AmountSats                    int64  `json:"amount_sats"`
	DeductFeeFromWithdrawalAmount bool   `json:"deduct_fee_from_withdrawal_amount,omitempty"`
}

// CoopExit is the service's record of a cooperative exit request.
type CoopExit struct {
	ID        string    `json:"id"`
	TxID      string    `json:"tx_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FeeQuote prices a withdrawal ahead of dispatch.
type FeeQuote struct {
	FeeSats   int64     `json:"fee_sats"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenTransferParams are the inputs for moving tokens between Spark addresses.
type TokenTransferParams struct {
	TokenIdentifier string `json:"token_identifier"`
	TokenAmount     uint64 `json:"token_amount"`
	ReceiverAddress string `json:"receiver_spark_address"`
}

// TokenTransaction is a historical token movement.
type TokenTransaction struct {
	ID              string    `json:"id"`
	TokenIdentifier string    `json:"token_identifier"`
	Amount          uint64    `json:"amount"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}
