package spark

import "context"

// Client is the boundary to the Spark wallet service. All key management,
// invoice handling and on-chain mechanics live behind it; this repository
// only orchestrates calls and records the results.
type Client interface {
	Initialize(ctx context.Context, seed []byte, accountNumber uint32) error

	GetSparkAddress(ctx context.Context) (string, error)
	GetIdentityPublicKey(ctx context.Context) (string, error)
	GetBalance(ctx context.Context) (*Balance, error)

	Transfer(ctx context.Context, receiverAddress string, amountSats int64) (*TransferResult, error)
	GetTransfers(ctx context.Context, limit, offset int) (*TransfersPage, error)

	CreateLightningInvoice(ctx context.Context, params InvoiceParams) (*Invoice, error)
	PayLightningInvoice(ctx context.Context, params PayInvoiceParams) (*Payment, error)
	LightningSendFeeEstimate(ctx context.Context, encodedInvoice string) (int64, error)
	SwapFeeEstimate(ctx context.Context, amountSats int64) (int64, error)

	SingleUseDepositAddress(ctx context.Context) (string, error)
	UnusedDepositAddresses(ctx context.Context) ([]string, error)
	StaticDepositAddress(ctx context.Context) (string, error)
	ClaimDeposit(ctx context.Context, txID string) (*TransferResult, error)
	ClaimStaticDepositQuote(ctx context.Context, txID string, outputIndex int) (*ClaimQuote, error)
	ClaimStaticDeposit(ctx context.Context, quote ClaimQuote) (*TransferResult, error)
	RefundStaticDeposit(ctx context.Context, depositTxID, destinationAddress string, feeSats int64) (string, error)

	Withdraw(ctx context.Context, params WithdrawParams) (*CoopExit, error)
	WithdrawalFeeQuote(ctx context.Context, amountSats int64, withdrawalAddress string) (*FeeQuote, error)
	CoopExitRequest(ctx context.Context, id string) (*CoopExit, error)

	TransferTokens(ctx context.Context, params TokenTransferParams) (string, error)
	QueryTokenTransactions(ctx context.Context, tokenIdentifier string) ([]TokenTransaction, error)
	TokenL1Address(ctx context.Context) (string, error)

	Close() error
}
