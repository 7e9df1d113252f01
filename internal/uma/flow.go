package uma

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
)

// Payment flow steps, in order. A nil flow means no payment is underway.
const (
	StepSelectRecipient = "select_recipient"
	StepEnterAmount     = "enter_amount"
	StepConfirm         = "confirm"
	StepProcessing      = "processing"
	StepComplete        = "complete"
)

// Failure policies for a confirm that fails mid-protocol.
const (
	// PolicyAbandon drops the flow; the error stays retrievable until
	// the next flow starts.
	PolicyAbandon = "abandon"
	// PolicyReturnToConfirm steps the flow back to confirm so the user
	// can retry or cancel.
	PolicyReturnToConfirm = "return_to_confirm"
)

// Fees breaks a payment's cost into its components. Total is always
// Network + Service.
type Fees struct {
	Network float64 `json:"network"`
	Service float64 `json:"service"`
	Total   float64 `json:"total"`
}

// PaymentFlow is the state of one in-progress send.
type PaymentFlow struct {
	ID                string                   `json:"id"`
	Step              string                   `json:"step"`
	Recipient         *walletstatedb.Recipient `json:"recipient,omitempty"`
	Amount            float64                  `json:"amount"`
	Currency          string                   `json:"currency"`
	ReceivingAmount   float64                  `json:"receiving_amount"`
	ReceivingCurrency string                   `json:"receiving_currency"`
	Fees              Fees                     `json:"fees"`
	StartedAt         time.Time                `json:"started_at"`
	Error             string                   `json:"error,omitempty"`
}

type flowState struct {
	flowMu        sync.Mutex
	flow          *PaymentFlow
	lastFlowError error
	failurePolicy string
}

// StartSendPayment begins a new payment flow at recipient selection. An
// in-flight flow is overwritten; starting over is always allowed.
func (s *Service) StartSendPayment() *PaymentFlow {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	s.flow = &PaymentFlow{
		ID:        uuid.New().String(),
		Step:      StepSelectRecipient,
		Currency:  "USD",
		StartedAt: time.Now(),
	}
	s.lastFlowError = nil
	return s.snapshotLocked()
}

// SelectRecipient attaches a known recipient to the flow and advances to
// amount entry. The recipient must already be saved; paying an unknown
// address goes through AddRecipient first.
func (s *Service) SelectRecipient(address string) (*PaymentFlow, error) {
	recipient, err := s.indexed.FindRecipientByAddress(address)
	if err != nil {
		return nil, fmt.Errorf("looking up recipient: %w", err)
	}
	if recipient == nil {
		return nil, fmt.Errorf("unknown recipient %s", address)
	}

	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow == nil || s.flow.Step != StepSelectRecipient {
		return nil, fmt.Errorf("no payment flow awaiting recipient selection")
	}

	s.flow.Recipient = recipient
	s.flow.Step = StepEnterAmount
	return s.snapshotLocked(), nil
}

// SetPaymentAmount validates the amount, computes the converted receiving
// amount and the fee breakdown, and advances to confirmation. A USD send
// converts to BTC at the fixed rate; any other sending currency is
// delivered as USD at face value.
func (s *Service) SetPaymentAmount(amount float64, currency string) (*PaymentFlow, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("amount must be a positive number, got %v", amount)
	}
	if currency == "" {
		currency = "USD"
	}

	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow == nil || s.flow.Step != StepEnterAmount {
		return nil, fmt.Errorf("no payment flow awaiting an amount")
	}

	rate := viper.GetFloat64("usd_to_btc_rate")
	network := viper.GetFloat64("fee_network")
	service := viper.GetFloat64("fee_service")

	s.flow.Amount = amount
	s.flow.Currency = currency
	if currency == "USD" {
		s.flow.ReceivingAmount = amount * rate
		s.flow.ReceivingCurrency = "BTC"
	} else {
		s.flow.ReceivingAmount = amount
		s.flow.ReceivingCurrency = "USD"
	}
	s.flow.Fees = Fees{
		Network: network,
		Service: service,
		Total:   network + service,
	}
	s.flow.Step = StepConfirm
	return s.snapshotLocked(), nil
}

// ConfirmPayment runs the UMA protocol for the confirmed flow: lnurlp
// lookup, pay request, payment dispatch. Each step is bracketed by a
// pending activity entry resolved to success or failed. On success the
// transaction is recorded and the flow completes; on failure the
// configured policy decides whether the flow is abandoned or returned
// to the confirm step.
func (s *Service) ConfirmPayment(ctx context.Context) (*PaymentFlow, error) {
	s.flowMu.Lock()
	if s.flow == nil || s.flow.Step != StepConfirm {
		s.flowMu.Unlock()
		return nil, fmt.Errorf("no payment flow awaiting confirmation")
	}
	s.flow.Step = StepProcessing
	s.flow.Error = ""
	flow := *s.flow
	s.flowMu.Unlock()

	receiver := flow.Recipient.Address

	s.LogActivity(walletstatedb.ActivityLNURLPRequest, walletstatedb.ActivityPending, map[string]interface{}{
		"receiver": receiver,
	})
	lnurlp, err := s.client.ResolveLNURLP(ctx, receiver)
	if err != nil {
		s.LogActivity(walletstatedb.ActivityLNURLPRequest, walletstatedb.ActivityFailed, map[string]interface{}{
			"receiver": receiver,
			"error":    err.Error(),
		})
		return s.failConfirm(flow, err)
	}
	s.LogActivity(walletstatedb.ActivityLNURLPRequest, walletstatedb.ActivitySuccess, map[string]interface{}{
		"receiver": receiver,
		"callback": lnurlp.Callback,
	})

	payReq := PayRequest{
		Amount:          minorUnits(flow.Amount, flow.Currency),
		CurrencyCode:    flow.Currency,
		PayerKycStatus:  "VERIFIED",
		PayerIdentifier: s.payerIdentifier(),
	}
	s.LogActivity(walletstatedb.ActivityPayRequest, walletstatedb.ActivityPending, map[string]interface{}{
		"callback": lnurlp.Callback,
		"amount":   payReq.Amount,
		"currency": payReq.CurrencyCode,
	})
	payResp, err := s.client.CreatePayRequest(ctx, lnurlp.Callback, payReq)
	if err != nil {
		s.LogActivity(walletstatedb.ActivityPayRequest, walletstatedb.ActivityFailed, map[string]interface{}{
			"callback": lnurlp.Callback,
			"error":    err.Error(),
		})
		return s.failConfirm(flow, err)
	}
	s.LogActivity(walletstatedb.ActivityPayRequest, walletstatedb.ActivitySuccess, map[string]interface{}{
		"callback": lnurlp.Callback,
	})

	s.LogActivity(walletstatedb.ActivityPaymentSent, walletstatedb.ActivityPending, map[string]interface{}{
		"receiver": receiver,
	})
	sendResp, err := s.client.SendPayment(ctx, SendPaymentRequest{
		Invoice:      payResp.EncodedInvoice,
		MaxFeesMsats: viper.GetInt64("max_payment_fee_msats"),
	})
	if err != nil {
		s.LogActivity(walletstatedb.ActivityPaymentSent, walletstatedb.ActivityFailed, map[string]interface{}{
			"receiver": receiver,
			"error":    err.Error(),
		})
		s.recordFlowTransaction(flow, walletstatedb.StatusFailed, "")
		return s.failConfirm(flow, err)
	}
	txID := ""
	if sendResp.Payment != nil {
		txID = sendResp.Payment.ID
	}
	s.LogActivity(walletstatedb.ActivityPaymentSent, walletstatedb.ActivitySuccess, map[string]interface{}{
		"receiver": receiver,
		"tx_id":    txID,
	})

	s.recordFlowTransaction(flow, walletstatedb.StatusCompleted, txID)
	s.debitBalance(flow.Amount + flow.Fees.Total)

	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow != nil && s.flow.ID == flow.ID {
		s.flow.Step = StepComplete
	}
	return s.snapshotLocked(), nil
}

// CancelPayment abandons the flow. Cancelling is only possible before the
// payment is dispatched; a processing or complete flow cannot be cancelled.
func (s *Service) CancelPayment() error {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flow == nil {
		return nil
	}
	switch s.flow.Step {
	case StepSelectRecipient, StepEnterAmount, StepConfirm:
		s.flow = nil
		return nil
	default:
		return fmt.Errorf("cannot cancel a payment in step %s", s.flow.Step)
	}
}

// ResetFlow clears a completed or abandoned flow.
func (s *Service) ResetFlow() {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	s.flow = nil
	s.lastFlowError = nil
}

// Flow returns a copy of the current flow, nil when none is underway.
func (s *Service) Flow() *PaymentFlow {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	return s.snapshotLocked()
}

// LastFlowError returns the error from the most recent failed confirm,
// nil after a success or a fresh start.
func (s *Service) LastFlowError() error {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	return s.lastFlowError
}

func (s *Service) snapshotLocked() *PaymentFlow {
	if s.flow == nil {
		return nil
	}
	cp := *s.flow
	if s.flow.Recipient != nil {
		r := *s.flow.Recipient
		cp.Recipient = &r
	}
	return &cp
}

func (s *Service) failConfirm(flow PaymentFlow, cause error) (*PaymentFlow, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	s.lastFlowError = cause
	if s.flow == nil || s.flow.ID != flow.ID {
		return nil, cause
	}
	if s.failurePolicy == PolicyReturnToConfirm {
		s.flow.Step = StepConfirm
		s.flow.Error = cause.Error()
		return s.snapshotLocked(), cause
	}
	s.flow = nil
	return nil, cause
}

// payerIdentifier is the sender's own UMA address, empty when no account
// has been created yet.
func (s *Service) payerIdentifier() string {
	account, err := s.Account()
	if err != nil || account == nil {
		return ""
	}
	return account.Address
}

func (s *Service) recordFlowTransaction(flow PaymentFlow, status, txID string) {
	tx := walletstatedb.UMATransaction{
		ID:        uuid.New().String(),
		Type:      "send",
		Address:   flow.Recipient.Address,
		Amount:    flow.Amount,
		Currency:  flow.Currency,
		Status:    status,
		Timestamp: time.Now(),
		TxID:      txID,
		Fees:      flow.Fees.Total,
	}
	if err := s.AddTransaction(tx); err != nil {
		s.LogActivity(walletstatedb.ActivityPayResponse, walletstatedb.ActivityFailed, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// debitBalance lowers the persisted UMA balance after a completed send.
// Best effort; the next balance refresh corrects any drift.
func (s *Service) debitBalance(amount float64) {
	bal, err := s.Balance()
	if err != nil {
		return
	}
	bal.FiatBalance -= amount
	if bal.FiatBalance < 0 {
		bal.FiatBalance = 0
	}
	_ = s.UpdateBalance(*bal)
}

// minorUnits converts a decimal amount into the currency's smallest unit.
func minorUnits(amount float64, currency string) int64 {
	switch currency {
	case "BTC":
		return int64(math.Round(amount * 1e8))
	default:
		return int64(math.Round(amount * 100))
	}
}
