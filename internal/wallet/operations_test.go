package wallet

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/spark"
)

// fakeSparkClient is an in-memory stand-in for the Spark service.
type fakeSparkClient struct {
	mu        sync.Mutex
	balance   uint64
	transfers int
	failNext  error
}

func (f *fakeSparkClient) takeFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeSparkClient) Initialize(ctx context.Context, seed []byte, accountNumber uint32) error {
	if len(seed) == 0 {
		return errors.New("empty seed")
	}
	return nil
}

func (f *fakeSparkClient) GetSparkAddress(ctx context.Context) (string, error) {
	return "sp1qfakeaddress", nil
}

func (f *fakeSparkClient) GetIdentityPublicKey(ctx context.Context) (string, error) {
	return "02fakepubkey", nil
}

func (f *fakeSparkClient) GetBalance(ctx context.Context) (*spark.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &spark.Balance{Sats: f.balance}, nil
}

func (f *fakeSparkClient) Transfer(ctx context.Context, receiverAddress string, amountSats int64) (*spark.TransferResult, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	f.balance -= uint64(amountSats)
	return &spark.TransferResult{
		ID:     fmt.Sprintf("transfer-%d", f.transfers),
		Status: spark.TransferStatusCompleted,
	}, nil
}

func (f *fakeSparkClient) GetTransfers(ctx context.Context, limit, offset int) (*spark.TransfersPage, error) {
	return &spark.TransfersPage{}, nil
}

func (f *fakeSparkClient) CreateLightningInvoice(ctx context.Context, params spark.InvoiceParams) (*spark.Invoice, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	return &spark.Invoice{ID: "inv-1", EncodedInvoice: "lnbc1fake"}, nil
}

func (f *fakeSparkClient) PayLightningInvoice(ctx context.Context, params spark.PayInvoiceParams) (*spark.Payment, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	return &spark.Payment{ID: "pay-1", Status: "SUCCESS"}, nil
}

func (f *fakeSparkClient) LightningSendFeeEstimate(ctx context.Context, encodedInvoice string) (int64, error) {
	return 3, nil
}

func (f *fakeSparkClient) SwapFeeEstimate(ctx context.Context, amountSats int64) (int64, error) {
	return 7, nil
}

func (f *fakeSparkClient) SingleUseDepositAddress(ctx context.Context) (string, error) {
	return "bc1qdeposit", nil
}

func (f *fakeSparkClient) UnusedDepositAddresses(ctx context.Context) ([]string, error) {
	return []string{"bc1qdeposit"}, nil
}

func (f *fakeSparkClient) StaticDepositAddress(ctx context.Context) (string, error) {
	return "bc1qstatic", nil
}

func (f *fakeSparkClient) ClaimDeposit(ctx context.Context, txID string) (*spark.TransferResult, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += 1000
	return &spark.TransferResult{ID: "claim-1", Status: spark.TransferStatusCompleted}, nil
}

func (f *fakeSparkClient) ClaimStaticDepositQuote(ctx context.Context, txID string, outputIndex int) (*spark.ClaimQuote, error) {
	return &spark.ClaimQuote{TransactionID: txID, CreditAmountSats: 900, Signature: "sig"}, nil
}

func (f *fakeSparkClient) ClaimStaticDeposit(ctx context.Context, quote spark.ClaimQuote) (*spark.TransferResult, error) {
	return &spark.TransferResult{ID: "claim-static-1"}, nil
}

func (f *fakeSparkClient) RefundStaticDeposit(ctx context.Context, depositTxID, destinationAddress string, feeSats int64) (string, error) {
	return "0200fakehex", nil
}

func (f *fakeSparkClient) Withdraw(ctx context.Context, params spark.WithdrawParams) (*spark.CoopExit, error) {
	return &spark.CoopExit{ID: "exit-1", CreatedAt: time.Now()}, nil
}

func (f *fakeSparkClient) WithdrawalFeeQuote(ctx context.Context, amountSats int64, withdrawalAddress string) (*spark.FeeQuote, error) {
	return &spark.FeeQuote{FeeSats: 120, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeSparkClient) CoopExitRequest(ctx context.Context, id string) (*spark.CoopExit, error) {
	return &spark.CoopExit{ID: id}, nil
}

func (f *fakeSparkClient) TransferTokens(ctx context.Context, params spark.TokenTransferParams) (string, error) {
	return "token-tx-1", nil
}

func (f *fakeSparkClient) QueryTokenTransactions(ctx context.Context, tokenIdentifier string) ([]spark.TokenTransaction, error) {
	return nil, nil
}

func (f *fakeSparkClient) TokenL1Address(ctx context.Context) (string, error) {
	return "bc1qtokens", nil
}

func (f *fakeSparkClient) Close() error { return nil }

func newTestSession(t *testing.T) (*Session, *fakeSparkClient, *walletstatedb.GravitonStore) {
	t.Helper()
	t.Cleanup(viper.Reset)

	store, err := walletstatedb.OpenGravitonStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	client := &fakeSparkClient{balance: 5000}
	return NewSession(client, store, 0), client, store
}

func initSession(t *testing.T, s *Session) string {
	t.Helper()
	mnemonic, err := s.Initialize(context.Background(), "")
	if err != nil {
		t.Fatalf("initializing session: %v", err)
	}
	return mnemonic
}

func TestInitializeGeneratesAndPersistsMnemonic(t *testing.T) {
	s, _, store := newTestSession(t)

	mnemonic := initSession(t, s)
	if mnemonic == "" {
		t.Fatal("expected a generated mnemonic")
	}
	if !s.Initialized() {
		t.Fatal("session should be initialized")
	}
	if s.SparkAddress() == "" {
		t.Error("spark address not hydrated")
	}

	stored, err := store.LoadMnemonic()
	if err != nil {
		t.Fatal(err)
	}
	if stored != mnemonic {
		t.Error("mnemonic not persisted")
	}
}

func TestInitializeRejectsBadMnemonic(t *testing.T) {
	s, _, _ := newTestSession(t)

	_, err := s.Initialize(context.Background(), "definitely not a valid phrase")
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if s.Initialized() {
		t.Fatal("session should not be initialized after a rejected mnemonic")
	}
}

func TestRestoreReopensStoredWallet(t *testing.T) {
	s, client, store := newTestSession(t)
	mnemonic := initSession(t, s)

	fresh := NewSession(client, store, 0)
	if err := fresh.Restore(context.Background()); err != nil {
		t.Fatalf("restoring session: %v", err)
	}
	if !fresh.Initialized() {
		t.Fatal("restored session should be initialized")
	}

	stored, _ := store.LoadMnemonic()
	if stored != mnemonic {
		t.Error("restore changed the stored mnemonic")
	}
}

func TestRestoreWithoutWalletFails(t *testing.T) {
	s, _, _ := newTestSession(t)

	err := s.Restore(context.Background())
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindConfig {
		t.Fatalf("expected a config error, got %v", err)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	s, _, _ := newTestSession(t)

	_, err := s.Transfer(context.Background(), "sp1qsomeone", 100)
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindConfig {
		t.Fatalf("expected a config error before initialize, got %v", err)
	}
}

func TestTransferRecordsAndPersists(t *testing.T) {
	s, _, store := newTestSession(t)
	initSession(t, s)

	transfer, err := s.Transfer(context.Background(), "sp1qsomeone", 250)
	if err != nil {
		t.Fatalf("transferring: %v", err)
	}
	if transfer.AmountSats != 250 || transfer.Status != walletstatedb.StatusCompleted {
		t.Fatalf("unexpected transfer record %+v", transfer)
	}

	inMemory := s.Transfers()
	if len(inMemory) != 1 || inMemory[0].ID != transfer.ID {
		t.Fatalf("in-memory list %+v", inMemory)
	}

	persisted, err := store.LoadTransfers()
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 || persisted[0].ID != transfer.ID {
		t.Fatalf("persisted list %+v", persisted)
	}

	// The transfer refreshes the balance as a side effect.
	if s.Balance().Sats != 5000-250 {
		t.Errorf("balance = %d, want %d", s.Balance().Sats, 5000-250)
	}
}

func TestTransferValidation(t *testing.T) {
	s, _, _ := newTestSession(t)
	initSession(t, s)

	var opErr *OpError
	if _, err := s.Transfer(context.Background(), "", 100); !errors.As(err, &opErr) || opErr.Kind != KindValidation {
		t.Errorf("empty address: got %v", err)
	}
	if _, err := s.Transfer(context.Background(), "sp1qsomeone", 0); !errors.As(err, &opErr) || opErr.Kind != KindValidation {
		t.Errorf("zero amount: got %v", err)
	}
	if len(s.Transfers()) != 0 {
		t.Error("failed validation must not touch the transfer list")
	}
}

func TestTransferFailureLeavesStateUntouched(t *testing.T) {
	s, client, store := newTestSession(t)
	initSession(t, s)

	if _, err := s.Transfer(context.Background(), "sp1qsomeone", 100); err != nil {
		t.Fatal(err)
	}

	client.failNext = errors.New("service unavailable")
	_, err := s.Transfer(context.Background(), "sp1qsomeone", 100)
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindExternal {
		t.Fatalf("expected an external error, got %v", err)
	}

	if len(s.Transfers()) != 1 {
		t.Error("failed transfer must not grow the in-memory list")
	}
	persisted, _ := store.LoadTransfers()
	if len(persisted) != 1 {
		t.Error("failed transfer must not grow the persisted list")
	}
	if s.LastError("transfer") == nil {
		t.Error("the failure should be recorded for the operation")
	}
}

func TestConcurrentTransfersSerialized(t *testing.T) {
	s, client, store := newTestSession(t)
	initSession(t, s)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			if _, err := s.Transfer(context.Background(), "sp1qsomeone", amount); err != nil {
				t.Errorf("transfer: %v", err)
			}
		}(int64(10 + n))
	}
	wg.Wait()

	if client.transfers != n {
		t.Errorf("service saw %d transfers, want %d", client.transfers, n)
	}
	if len(s.Transfers()) != n {
		t.Errorf("in-memory list has %d entries, want %d", len(s.Transfers()), n)
	}
	persisted, err := store.LoadTransfers()
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != n {
		t.Errorf("persisted list has %d entries, want %d", len(persisted), n)
	}
}

func TestCreateAndPayInvoice(t *testing.T) {
	s, _, store := newTestSession(t)
	initSession(t, s)

	invoice, err := s.CreateLightningInvoice(context.Background(), 500, "coffee")
	if err != nil {
		t.Fatalf("creating invoice: %v", err)
	}
	if invoice.EncodedInvoice == "" || invoice.Status != walletstatedb.StatusPending {
		t.Fatalf("unexpected invoice %+v", invoice)
	}
	persisted, _ := store.LoadInvoices()
	if len(persisted) != 1 {
		t.Fatal("invoice not persisted")
	}

	req, err := s.PayLightningInvoice(context.Background(), "lnbc1other", 0)
	if err != nil {
		t.Fatalf("paying invoice: %v", err)
	}
	if req.Status != walletstatedb.StatusCompleted {
		t.Fatalf("unexpected send request %+v", req)
	}
	requests, _ := store.LoadSendRequests()
	if len(requests) != 1 {
		t.Fatal("send request not persisted")
	}
}

func TestDepositAddressRecorded(t *testing.T) {
	s, _, store := newTestSession(t)
	initSession(t, s)

	addr, err := s.SingleUseDepositAddress(context.Background())
	if err != nil {
		t.Fatalf("generating address: %v", err)
	}
	if addr != "bc1qdeposit" {
		t.Fatalf("address = %s", addr)
	}
	persisted, _ := store.LoadDepositAddresses()
	if len(persisted) != 1 || persisted[0] != addr {
		t.Fatalf("persisted addresses %+v", persisted)
	}
}

func TestSwapFeeEstimate(t *testing.T) {
	s, _, _ := newTestSession(t)
	initSession(t, s)

	fee, err := s.SwapFeeEstimate(context.Background(), 1000)
	if err != nil {
		t.Fatalf("estimating swap fee: %v", err)
	}
	if fee != 7 {
		t.Errorf("fee = %d, want 7", fee)
	}

	_, err = s.SwapFeeEstimate(context.Background(), 0)
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindValidation {
		t.Fatalf("expected a validation error for zero amount, got %v", err)
	}
}

func TestWithdrawValidatesExitSpeed(t *testing.T) {
	s, _, _ := newTestSession(t)
	initSession(t, s)

	_, err := s.Withdraw(context.Background(), spark.WithdrawParams{
		OnchainAddress: "bc1qdest",
		AmountSats:     100,
		ExitSpeed:      "WARP",
	})
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Kind != KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}

	exit, err := s.Withdraw(context.Background(), spark.WithdrawParams{
		OnchainAddress: "bc1qdest",
		AmountSats:     100,
	})
	if err != nil {
		t.Fatalf("withdrawing with default speed: %v", err)
	}
	if exit.ID == "" {
		t.Error("missing exit id")
	}
}

func TestSignOutClearsSession(t *testing.T) {
	s, _, store := newTestSession(t)
	initSession(t, s)

	if _, err := s.Transfer(context.Background(), "sp1qsomeone", 100); err != nil {
		t.Fatal(err)
	}

	if err := s.SignOut(); err != nil {
		t.Fatalf("signing out: %v", err)
	}
	if s.Initialized() {
		t.Fatal("session still initialized after sign out")
	}
	if mnemonic, _ := store.LoadMnemonic(); mnemonic != "" {
		t.Error("mnemonic survived sign out")
	}
	// History stays on disk for the next login.
	persisted, _ := store.LoadTransfers()
	if len(persisted) != 1 {
		t.Error("sign out should not wipe the transfer history")
	}
}
