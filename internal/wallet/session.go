package wallet

import (
	"context"
	"sync"

	"github.com/tyler-smith/go-bip39"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/logger"
	"github.com/sparkuma/spark-wallet/internal/spark"
)

// TokenInfo pairs a token balance with its on-chain metadata.
type TokenInfo struct {
	TokenIdentifier string `json:"tokenIdentifier"`
	Balance         uint64 `json:"balance"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
}

// Session owns a single open wallet: the upstream client, the persisted
// state behind it, and the in-memory copies handed to callers. Mutating
// operations are serialized so concurrent callers cannot interleave a
// service call with the persistence that follows it.
type Session struct {
	client spark.Client
	store  walletstatedb.FlatStore

	accountNumber uint32

	// opMu serializes mutating operations end to end.
	opMu sync.Mutex
	// mu guards the fields below.
	mu sync.RWMutex

	initialized      bool
	sparkAddress     string
	identityPubKey   string
	balance          walletstatedb.WalletBalance
	transfers        []walletstatedb.Transfer
	invoices         []walletstatedb.LightningInvoice
	sendRequests     []walletstatedb.LightningSendRequest
	depositAddresses []string
	inFlight         map[string]bool
	opErrs           map[string]*OpError
}

// NewSession wires a session around a spark client and a flat store. The
// wallet is not opened until Initialize or Restore is called.
func NewSession(client spark.Client, store walletstatedb.FlatStore, accountNumber uint32) *Session {
	return &Session{
		client:        client,
		store:         store,
		accountNumber: accountNumber,
		inFlight:      make(map[string]bool),
		opErrs:        make(map[string]*OpError),
	}
}

// Initialize opens the wallet from a mnemonic. An empty mnemonic generates
// a fresh one. The mnemonic is persisted so Restore can reopen the wallet
// after a restart, and previously persisted activity lists are loaded back
// into memory.
func (s *Session) Initialize(ctx context.Context, mnemonic string) (string, error) {
	const op = "initialize"

	if mnemonic == "" {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return "", externalErr(op, err)
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return "", externalErr(op, err)
		}
	} else if !bip39.IsMnemonicValid(mnemonic) {
		return "", validationErr(op, "invalid mnemonic")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	seed := bip39.NewSeed(mnemonic, "")
	if err := s.client.Initialize(ctx, seed, s.accountNumber); err != nil {
		s.recordErr(op, externalErr(op, err))
		return "", externalErr(op, err)
	}

	if err := s.store.SaveMnemonic(mnemonic); err != nil {
		logger.Error("failed to persist mnemonic:", err)
	}

	s.loadPersistedState()

	s.mu.Lock()
	s.initialized = true
	delete(s.opErrs, op)
	s.mu.Unlock()

	s.hydrateFromService(ctx)

	return mnemonic, nil
}

// Restore reopens a wallet from the persisted mnemonic. It fails with a
// config error when no wallet has been initialized on this store.
func (s *Session) Restore(ctx context.Context) error {
	const op = "restore"

	mnemonic, err := s.store.LoadMnemonic()
	if err != nil {
		return storageErr(op, err)
	}
	if mnemonic == "" {
		return configErr(op, "no stored wallet, initialize first")
	}
	_, err = s.Initialize(ctx, mnemonic)
	return err
}

// SignOut closes the session and clears the stored mnemonic. Persisted
// activity lists are left in place so a later Initialize with the same
// mnemonic sees its history again.
func (s *Session) SignOut() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.store.ClearMnemonic(); err != nil {
		return storageErr("sign_out", err)
	}
	if err := s.client.Close(); err != nil {
		logger.Warn("error closing wallet client:", err)
	}

	s.mu.Lock()
	s.initialized = false
	s.sparkAddress = ""
	s.identityPubKey = ""
	s.balance = walletstatedb.WalletBalance{}
	s.transfers = nil
	s.invoices = nil
	s.sendRequests = nil
	s.depositAddresses = nil
	s.opErrs = make(map[string]*OpError)
	s.mu.Unlock()

	return nil
}

// loadPersistedState pulls the persisted activity lists into memory.
// Missing lists are not an error, a fresh wallet simply has none.
func (s *Session) loadPersistedState() {
	transfers, err := s.store.LoadTransfers()
	if err != nil {
		logger.Warn("failed to load persisted transfers:", err)
	}
	invoices, err := s.store.LoadInvoices()
	if err != nil {
		logger.Warn("failed to load persisted invoices:", err)
	}
	sendRequests, err := s.store.LoadSendRequests()
	if err != nil {
		logger.Warn("failed to load persisted send requests:", err)
	}
	addrs, err := s.store.LoadDepositAddresses()
	if err != nil {
		logger.Warn("failed to load persisted deposit addresses:", err)
	}

	s.mu.Lock()
	s.transfers = transfers
	s.invoices = invoices
	s.sendRequests = sendRequests
	s.depositAddresses = addrs
	s.mu.Unlock()
}

// hydrateFromService fetches the spark address, identity key, and balance.
// Failures here do not fail initialization, the wallet is usable with a
// stale view and the next refresh will fill it in.
func (s *Session) hydrateFromService(ctx context.Context) {
	addr, err := s.client.GetSparkAddress(ctx)
	if err != nil {
		logger.Warn("failed to fetch spark address:", err)
	}
	pubkey, err := s.client.GetIdentityPublicKey(ctx)
	if err != nil {
		logger.Warn("failed to fetch identity public key:", err)
	}

	s.mu.Lock()
	if addr != "" {
		s.sparkAddress = addr
	}
	if pubkey != "" {
		s.identityPubKey = pubkey
	}
	s.mu.Unlock()

	if err := s.RefreshBalance(ctx); err != nil {
		logger.Warn("initial balance refresh failed:", err)
	}
}

func (s *Session) requireSession(op string) *OpError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return configErr(op, "wallet not initialized")
	}
	return nil
}

func (s *Session) setInFlight(op string, v bool) {
	s.mu.Lock()
	s.inFlight[op] = v
	s.mu.Unlock()
}

func (s *Session) recordErr(op string, err *OpError) {
	s.mu.Lock()
	if err == nil {
		delete(s.opErrs, op)
	} else {
		s.opErrs[op] = err
	}
	s.mu.Unlock()
}

// IsInFlight reports whether the named operation is currently running.
func (s *Session) IsInFlight(op string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight[op]
}

// LastError returns the most recent error recorded for the named operation,
// or nil if its last run succeeded.
func (s *Session) LastError(op string) *OpError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opErrs[op]
}

// Initialized reports whether a wallet is currently open.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SparkAddress returns the wallet's spark address, empty until hydrated.
func (s *Session) SparkAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sparkAddress
}

// IdentityPublicKey returns the wallet's identity public key hex.
func (s *Session) IdentityPublicKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identityPubKey
}

// Balance returns the last known balance.
func (s *Session) Balance() walletstatedb.WalletBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Transfers returns the in-memory transfer list, newest first.
func (s *Session) Transfers() []walletstatedb.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]walletstatedb.Transfer, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// Invoices returns the in-memory lightning invoice list, newest first.
func (s *Session) Invoices() []walletstatedb.LightningInvoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]walletstatedb.LightningInvoice, len(s.invoices))
	copy(out, s.invoices)
	return out
}

// SendRequests returns the in-memory lightning send request list.
func (s *Session) SendRequests() []walletstatedb.LightningSendRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]walletstatedb.LightningSendRequest, len(s.sendRequests))
	copy(out, s.sendRequests)
	return out
}

// DepositAddresses returns the generated deposit address list.
func (s *Session) DepositAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.depositAddresses))
	copy(out, s.depositAddresses)
	return out
}
