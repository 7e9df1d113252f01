package walletstatedb

import (
	"encoding/json"
	"fmt"

	"github.com/deroproject/graviton"
)

const (
	walletStateTree = "wallet_state"

	keyAccount          = "uma_account"
	keyUMABalance       = "uma_balance"
	keySettings         = "uma_config"
	keyWalletBalance    = "spark_wallet_balance"
	keyMnemonic         = "spark_wallet_mnemonic"
	keyTransfers        = "spark_wallet_transfers"
	keyInvoices         = "spark_wallet_lightning_invoices"
	keySendRequests     = "spark_wallet_lightning_send_requests"
	keyDepositAddresses = "spark_wallet_deposit_addresses"
)

// GravitonStore implements FlatStore on top of a Graviton tree. Each record
// lives under a fixed key as a JSON blob; lists are capped on save.
type GravitonStore struct {
	store *graviton.Store
}

// NewGravitonStore wraps an opened Graviton store as a FlatStore
func NewGravitonStore(store *graviton.Store) *GravitonStore {
	return &GravitonStore{store: store}
}

// OpenGravitonStore opens (or creates) a Graviton-backed FlatStore at dbPath
func OpenGravitonStore(dbPath string) (*GravitonStore, error) {
	store, err := graviton.NewDiskStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open graviton store: %w", err)
	}
	return &GravitonStore{store: store}, nil
}

func (g *GravitonStore) put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ss, err := g.store.LoadSnapshot(0)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	tree, err := ss.GetTree(walletStateTree)
	if err != nil {
		return fmt.Errorf("failed to get state tree: %w", err)
	}

	if err := tree.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}

	return nil
}

// get unmarshals the blob under key into out. A missing key is not an
// error: get reports found=false and leaves out untouched.
func (g *GravitonStore) get(key string, out interface{}) (bool, error) {
	ss, err := g.store.LoadSnapshot(0)
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	tree, err := ss.GetTree(walletStateTree)
	if err != nil {
		return false, fmt.Errorf("failed to get state tree: %w", err)
	}

	data, err := tree.Get([]byte(key))
	if err != nil {
		// Graviton surfaces an absent key as a lookup error
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

func (g *GravitonStore) delete(keys ...string) error {
	ss, err := g.store.LoadSnapshot(0)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	tree, err := ss.GetTree(walletStateTree)
	if err != nil {
		return fmt.Errorf("failed to get state tree: %w", err)
	}

	for _, key := range keys {
		if err := tree.Delete([]byte(key)); err != nil {
			continue // absent keys are fine
		}
	}

	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit deletes: %w", err)
	}

	return nil
}

func (g *GravitonStore) SaveAccount(account Account) error {
	return g.put(keyAccount, account)
}

func (g *GravitonStore) LoadAccount() (*Account, error) {
	var account Account
	found, err := g.get(keyAccount, &account)
	if err != nil || !found {
		return nil, err
	}
	return &account, nil
}

func (g *GravitonStore) ClearAccount() error {
	return g.delete(keyAccount)
}

func (g *GravitonStore) SaveWalletBalance(balance WalletBalance) error {
	return g.put(keyWalletBalance, balance)
}

func (g *GravitonStore) LoadWalletBalance() (*WalletBalance, error) {
	var balance WalletBalance
	found, err := g.get(keyWalletBalance, &balance)
	if err != nil || !found {
		return nil, err
	}
	return &balance, nil
}

func (g *GravitonStore) SaveUMABalance(balance UMABalance) error {
	return g.put(keyUMABalance, balance)
}

func (g *GravitonStore) LoadUMABalance() (*UMABalance, error) {
	var balance UMABalance
	found, err := g.get(keyUMABalance, &balance)
	if err != nil || !found {
		return nil, err
	}
	return &balance, nil
}

func (g *GravitonStore) SaveSettings(settings Settings) error {
	return g.put(keySettings, settings)
}

func (g *GravitonStore) LoadSettings() (*Settings, error) {
	var settings Settings
	found, err := g.get(keySettings, &settings)
	if err != nil || !found {
		return nil, err
	}
	return &settings, nil
}

func (g *GravitonStore) SaveMnemonic(mnemonic string) error {
	return g.put(keyMnemonic, mnemonic)
}

func (g *GravitonStore) LoadMnemonic() (string, error) {
	var mnemonic string
	found, err := g.get(keyMnemonic, &mnemonic)
	if err != nil || !found {
		return "", err
	}
	return mnemonic, nil
}

func (g *GravitonStore) ClearMnemonic() error {
	return g.delete(keyMnemonic)
}

func (g *GravitonStore) SaveTransfers(transfers []Transfer) error {
	return g.put(keyTransfers, capNewestFirst(transfers))
}

func (g *GravitonStore) LoadTransfers() ([]Transfer, error) {
	var transfers []Transfer
	if _, err := g.get(keyTransfers, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (g *GravitonStore) SaveInvoices(invoices []LightningInvoice) error {
	return g.put(keyInvoices, capNewestFirst(invoices))
}

func (g *GravitonStore) LoadInvoices() ([]LightningInvoice, error) {
	var invoices []LightningInvoice
	if _, err := g.get(keyInvoices, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (g *GravitonStore) SaveSendRequests(requests []LightningSendRequest) error {
	return g.put(keySendRequests, capNewestFirst(requests))
}

func (g *GravitonStore) LoadSendRequests() ([]LightningSendRequest, error) {
	var requests []LightningSendRequest
	if _, err := g.get(keySendRequests, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (g *GravitonStore) SaveDepositAddresses(addresses []string) error {
	return g.put(keyDepositAddresses, capNewestFirst(addresses))
}

func (g *GravitonStore) LoadDepositAddresses() ([]string, error) {
	var addresses []string
	if _, err := g.get(keyDepositAddresses, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (g *GravitonStore) ClearAll() error {
	return g.delete(
		keyAccount,
		keyUMABalance,
		keySettings,
		keyWalletBalance,
		keyMnemonic,
		keyTransfers,
		keyInvoices,
		keySendRequests,
		keyDepositAddresses,
	)
}
