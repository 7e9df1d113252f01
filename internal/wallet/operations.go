package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/logger"
	"github.com/sparkuma/spark-wallet/internal/spark"
)

// Transfer sends sats to another Spark address. On success the transfer is
// prepended to the persisted list and the balance is refreshed. A failed
// persistence does not undo the transfer; it comes back as a storage error
// alongside the record.
func (s *Session) Transfer(ctx context.Context, receiverAddress string, amountSats int64) (*walletstatedb.Transfer, error) {
	const op = "transfer"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(receiverAddress) == "" {
		return nil, validationErr(op, "receiver address is required")
	}
	if amountSats <= 0 {
		return nil, validationErr(op, "amount must be positive, got %d", amountSats)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	result, err := s.client.Transfer(ctx, receiverAddress, amountSats)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}

	transfer := walletstatedb.Transfer{
		ID:              result.ID,
		AmountSats:      amountSats,
		ReceiverAddress: receiverAddress,
		Timestamp:       time.Now(),
		Status:          walletstatedb.StatusCompleted,
		TxID:            result.ID,
	}
	if transfer.ID == "" {
		transfer.ID = uuid.New().String()
	}

	s.mu.Lock()
	s.transfers = append([]walletstatedb.Transfer{transfer}, s.transfers...)
	snapshot := make([]walletstatedb.Transfer, len(s.transfers))
	copy(snapshot, s.transfers)
	s.mu.Unlock()

	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)

	if err := s.store.SaveTransfers(snapshot); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return &transfer, oe
	}
	return &transfer, nil
}

// RefreshTransfers replaces the in-memory transfer history with the
// service's view and persists it.
func (s *Session) RefreshTransfers(ctx context.Context, limit, offset int) ([]walletstatedb.Transfer, error) {
	const op = "refresh_transfers"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = walletstatedb.MaxRetainedItems
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	page, err := s.client.GetTransfers(ctx, limit, offset)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}

	transfers := make([]walletstatedb.Transfer, 0, len(page.Transfers))
	for _, rec := range page.Transfers {
		status := walletstatedb.StatusPending
		if rec.Status == spark.TransferStatusCompleted {
			status = walletstatedb.StatusCompleted
		}
		transfers = append(transfers, walletstatedb.Transfer{
			ID:              rec.ID,
			AmountSats:      rec.AmountSats,
			ReceiverAddress: rec.ReceiverAddress,
			Timestamp:       rec.Timestamp,
			Status:          status,
			TxID:            rec.TxID,
		})
	}

	s.mu.Lock()
	s.transfers = transfers
	s.mu.Unlock()
	s.recordErr(op, nil)

	if err := s.store.SaveTransfers(transfers); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return transfers, oe
	}
	return transfers, nil
}

// CreateLightningInvoice creates a receive invoice and records it.
func (s *Session) CreateLightningInvoice(ctx context.Context, amountSats int64, memo string) (*walletstatedb.LightningInvoice, error) {
	const op = "create_invoice"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if amountSats <= 0 {
		return nil, validationErr(op, "amount must be positive, got %d", amountSats)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	inv, err := s.client.CreateLightningInvoice(ctx, spark.InvoiceParams{
		AmountSats: amountSats,
		Memo:       memo,
	})
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}

	invoice := walletstatedb.LightningInvoice{
		ID:             inv.ID,
		EncodedInvoice: inv.EncodedInvoice,
		AmountSats:     amountSats,
		Memo:           memo,
		Status:         walletstatedb.StatusPending,
		CreatedAt:      time.Now(),
	}
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}

	s.mu.Lock()
	s.invoices = append([]walletstatedb.LightningInvoice{invoice}, s.invoices...)
	snapshot := make([]walletstatedb.LightningInvoice, len(s.invoices))
	copy(snapshot, s.invoices)
	s.mu.Unlock()
	s.recordErr(op, nil)

	if err := s.store.SaveInvoices(snapshot); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return &invoice, oe
	}
	return &invoice, nil
}

// PayLightningInvoice pays a BOLT11 invoice, capping fees at maxFeeSats
// (or the configured default when zero), records the send request, and
// refreshes the balance.
func (s *Session) PayLightningInvoice(ctx context.Context, encodedInvoice string, maxFeeSats int64) (*walletstatedb.LightningSendRequest, error) {
	const op = "pay_invoice"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(encodedInvoice) == "" {
		return nil, validationErr(op, "invoice is required")
	}
	if maxFeeSats <= 0 {
		maxFeeSats = viper.GetInt64("max_payment_fee_msats") / 1000
		if maxFeeSats <= 0 {
			maxFeeSats = 1
		}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	payment, err := s.client.PayLightningInvoice(ctx, spark.PayInvoiceParams{
		Invoice:    encodedInvoice,
		MaxFeeSats: maxFeeSats,
	})
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}

	req := walletstatedb.LightningSendRequest{
		ID:         payment.ID,
		Invoice:    encodedInvoice,
		MaxFeeSats: maxFeeSats,
		Status:     walletstatedb.StatusCompleted,
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	s.mu.Lock()
	s.sendRequests = append([]walletstatedb.LightningSendRequest{req}, s.sendRequests...)
	snapshot := make([]walletstatedb.LightningSendRequest, len(s.sendRequests))
	copy(snapshot, s.sendRequests)
	s.mu.Unlock()

	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)

	if err := s.store.SaveSendRequests(snapshot); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return &req, oe
	}
	return &req, nil
}

// LightningSendFeeEstimate prices a Lightning payment without dispatching it.
func (s *Session) LightningSendFeeEstimate(ctx context.Context, encodedInvoice string) (int64, error) {
	const op = "fee_estimate"
	if err := s.requireSession(op); err != nil {
		return 0, err
	}
	if strings.TrimSpace(encodedInvoice) == "" {
		return 0, validationErr(op, "invoice is required")
	}
	fee, err := s.client.LightningSendFeeEstimate(ctx, encodedInvoice)
	if err != nil {
		return 0, externalErr(op, err)
	}
	return fee, nil
}

// SwapFeeEstimate prices a leaf swap for the given amount.
func (s *Session) SwapFeeEstimate(ctx context.Context, amountSats int64) (int64, error) {
	const op = "swap_fee_estimate"
	if err := s.requireSession(op); err != nil {
		return 0, err
	}
	if amountSats <= 0 {
		return 0, validationErr(op, "amount must be positive, got %d", amountSats)
	}
	fee, err := s.client.SwapFeeEstimate(ctx, amountSats)
	if err != nil {
		return 0, externalErr(op, err)
	}
	return fee, nil
}

// SingleUseDepositAddress generates a fresh on-chain deposit address and
// records it.
func (s *Session) SingleUseDepositAddress(ctx context.Context) (string, error) {
	const op = "deposit_address"
	if err := s.requireSession(op); err != nil {
		return "", err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	addr, err := s.client.SingleUseDepositAddress(ctx)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return "", oe
	}

	s.mu.Lock()
	s.depositAddresses = append([]string{addr}, s.depositAddresses...)
	snapshot := make([]string, len(s.depositAddresses))
	copy(snapshot, s.depositAddresses)
	s.mu.Unlock()
	s.recordErr(op, nil)

	if err := s.store.SaveDepositAddresses(snapshot); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return addr, oe
	}
	return addr, nil
}

// UnusedDepositAddresses lists previously generated addresses that have not
// received funds.
func (s *Session) UnusedDepositAddresses(ctx context.Context) ([]string, error) {
	const op = "unused_deposit_addresses"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	addrs, err := s.client.UnusedDepositAddresses(ctx)
	if err != nil {
		return nil, externalErr(op, err)
	}
	return addrs, nil
}

// StaticDepositAddress returns the wallet's reusable deposit address.
func (s *Session) StaticDepositAddress(ctx context.Context) (string, error) {
	const op = "static_deposit_address"
	if err := s.requireSession(op); err != nil {
		return "", err
	}
	addr, err := s.client.StaticDepositAddress(ctx)
	if err != nil {
		return "", externalErr(op, err)
	}
	return addr, nil
}

// ClaimDeposit claims a confirmed single-use deposit by transaction id and
// refreshes the balance.
func (s *Session) ClaimDeposit(ctx context.Context, txID string) (*spark.TransferResult, error) {
	const op = "claim_deposit"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(txID) == "" {
		return nil, validationErr(op, "transaction id is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	result, err := s.client.ClaimDeposit(ctx, txID)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}
	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)
	return result, nil
}

// ClaimStaticDepositQuote fetches a signed quote for claiming a static
// deposit output.
func (s *Session) ClaimStaticDepositQuote(ctx context.Context, txID string, outputIndex int) (*spark.ClaimQuote, error) {
	const op = "claim_quote"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(txID) == "" {
		return nil, validationErr(op, "transaction id is required")
	}
	quote, err := s.client.ClaimStaticDepositQuote(ctx, txID, outputIndex)
	if err != nil {
		return nil, externalErr(op, err)
	}
	return quote, nil
}

// ClaimStaticDeposit redeems a previously quoted static deposit and
// refreshes the balance.
func (s *Session) ClaimStaticDeposit(ctx context.Context, quote spark.ClaimQuote) (*spark.TransferResult, error) {
	const op = "claim_static_deposit"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if quote.TransactionID == "" || quote.Signature == "" {
		return nil, validationErr(op, "quote is incomplete")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	result, err := s.client.ClaimStaticDeposit(ctx, quote)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}
	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)
	return result, nil
}

// RefundStaticDeposit returns an unclaimed static deposit to an on-chain
// address, yielding the signed refund transaction hex.
func (s *Session) RefundStaticDeposit(ctx context.Context, depositTxID, destinationAddress string, feeSats int64) (string, error) {
	const op = "refund_static_deposit"
	if err := s.requireSession(op); err != nil {
		return "", err
	}
	if strings.TrimSpace(depositTxID) == "" || strings.TrimSpace(destinationAddress) == "" {
		return "", validationErr(op, "deposit tx id and destination address are required")
	}
	txHex, err := s.client.RefundStaticDeposit(ctx, depositTxID, destinationAddress, feeSats)
	if err != nil {
		return "", externalErr(op, err)
	}
	return txHex, nil
}

// Withdraw starts a cooperative on-chain exit and refreshes the balance.
func (s *Session) Withdraw(ctx context.Context, params spark.WithdrawParams) (*spark.CoopExit, error) {
	const op = "withdraw"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.OnchainAddress) == "" {
		return nil, validationErr(op, "onchain address is required")
	}
	if params.AmountSats <= 0 {
		return nil, validationErr(op, "amount must be positive, got %d", params.AmountSats)
	}
	switch params.ExitSpeed {
	case spark.ExitSpeedFast, spark.ExitSpeedMedium, spark.ExitSpeedSlow:
	case "":
		params.ExitSpeed = spark.ExitSpeedMedium
	default:
		return nil, validationErr(op, "unknown exit speed %q", params.ExitSpeed)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	exit, err := s.client.Withdraw(ctx, params)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return nil, oe
	}
	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)
	return exit, nil
}

// WithdrawalFeeQuote prices a withdrawal ahead of dispatch.
func (s *Session) WithdrawalFeeQuote(ctx context.Context, amountSats int64, withdrawalAddress string) (*spark.FeeQuote, error) {
	const op = "withdrawal_fee_quote"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if amountSats <= 0 {
		return nil, validationErr(op, "amount must be positive, got %d", amountSats)
	}
	quote, err := s.client.WithdrawalFeeQuote(ctx, amountSats, withdrawalAddress)
	if err != nil {
		return nil, externalErr(op, err)
	}
	return quote, nil
}

// CoopExitStatus looks up an in-progress cooperative exit.
func (s *Session) CoopExitStatus(ctx context.Context, id string) (*spark.CoopExit, error) {
	const op = "coop_exit_status"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, validationErr(op, "exit id is required")
	}
	exit, err := s.client.CoopExitRequest(ctx, id)
	if err != nil {
		return nil, externalErr(op, err)
	}
	return exit, nil
}

// TransferTokens moves token balances to another Spark address and
// refreshes the balance.
func (s *Session) TransferTokens(ctx context.Context, params spark.TokenTransferParams) (string, error) {
	const op = "transfer_tokens"
	if err := s.requireSession(op); err != nil {
		return "", err
	}
	if params.TokenIdentifier == "" {
		return "", validationErr(op, "token identifier is required")
	}
	if params.TokenAmount == 0 {
		return "", validationErr(op, "token amount must be positive")
	}
	if strings.TrimSpace(params.ReceiverAddress) == "" {
		return "", validationErr(op, "receiver address is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setInFlight(op, true)
	defer s.setInFlight(op, false)

	txID, err := s.client.TransferTokens(ctx, params)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return "", oe
	}
	s.recordErr(op, nil)
	s.refreshBalanceLocked(ctx)
	return txID, nil
}

// QueryTokenTransactions lists historical movements of a token.
func (s *Session) QueryTokenTransactions(ctx context.Context, tokenIdentifier string) ([]spark.TokenTransaction, error) {
	const op = "token_transactions"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	txs, err := s.client.QueryTokenTransactions(ctx, tokenIdentifier)
	if err != nil {
		return nil, externalErr(op, err)
	}
	return txs, nil
}

// TokenL1Address returns the wallet's L1 address for token operations.
func (s *Session) TokenL1Address(ctx context.Context) (string, error) {
	const op = "token_l1_address"
	if err := s.requireSession(op); err != nil {
		return "", err
	}
	addr, err := s.client.TokenL1Address(ctx)
	if err != nil {
		return "", externalErr(op, err)
	}
	return addr, nil
}

// RefreshBalance fetches the current balance, updates the in-memory copy
// and persists it.
func (s *Session) RefreshBalance(ctx context.Context) error {
	const op = "refresh_balance"
	if err := s.requireSession(op); err != nil {
		return err
	}
	return s.refreshBalanceOnce(ctx)
}

// refreshBalanceLocked refreshes the balance after a mutating operation.
// Failures are logged, not returned, so a flaky balance fetch cannot fail
// an operation that already succeeded.
func (s *Session) refreshBalanceLocked(ctx context.Context) {
	if err := s.refreshBalanceOnce(ctx); err != nil {
		logger.Warn("balance refresh failed:", err)
	}
}

func (s *Session) refreshBalanceOnce(ctx context.Context) error {
	const op = "refresh_balance"

	bal, err := s.client.GetBalance(ctx)
	if err != nil {
		oe := externalErr(op, err)
		s.recordErr(op, oe)
		return oe
	}

	balance := walletstatedb.WalletBalance{
		Sats:        bal.Sats,
		LastUpdated: time.Now(),
	}
	if len(bal.TokenBalances) > 0 {
		balance.TokenBalances = make(map[string]uint64, len(bal.TokenBalances))
		for id, tb := range bal.TokenBalances {
			balance.TokenBalances[id] = tb.Balance
		}
	}

	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	s.recordErr(op, nil)

	if err := s.store.SaveWalletBalance(balance); err != nil {
		oe := storageErr(op, err)
		s.recordErr(op, oe)
		return oe
	}
	return nil
}

// TokenBalances returns the current token balances with metadata attached.
func (s *Session) TokenBalances(ctx context.Context) ([]TokenInfo, error) {
	const op = "token_balances"
	if err := s.requireSession(op); err != nil {
		return nil, err
	}
	bal, err := s.client.GetBalance(ctx)
	if err != nil {
		return nil, externalErr(op, err)
	}
	infos := make([]TokenInfo, 0, len(bal.TokenBalances))
	for id, tb := range bal.TokenBalances {
		infos = append(infos, TokenInfo{
			TokenIdentifier: id,
			Balance:         tb.Balance,
			Name:            tb.Name,
			Symbol:          tb.Ticker,
		})
	}
	return infos, nil
}

// RunBalanceRefresher refreshes the balance on the configured interval
// until the context is cancelled. Intended to run in its own goroutine
// alongside the API server.
func (s *Session) RunBalanceRefresher(ctx context.Context) {
	interval := viper.GetDuration("balance_refresh_interval")
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Initialized() {
				continue
			}
			if err := s.RefreshBalance(ctx); err != nil {
				logger.Warn("periodic balance refresh failed:", err)
			}
		}
	}
}
