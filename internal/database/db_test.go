package walletstatedb

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestFlatStore(t *testing.T) *GravitonStore {
	t.Helper()
	store, err := OpenGravitonStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return store
}

func TestAccountRoundTrip(t *testing.T) {
	store := newTestFlatStore(t)

	loaded, err := store.LoadAccount()
	if err != nil {
		t.Fatalf("loading empty store: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil account before save")
	}

	account := Account{
		ID:        "acct-1",
		Address:   "$alice@spark-wallet.com",
		Username:  "alice",
		Domain:    "spark-wallet.com",
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	if err := store.SaveAccount(account); err != nil {
		t.Fatalf("saving account: %v", err)
	}

	loaded, err = store.LoadAccount()
	if err != nil {
		t.Fatalf("loading account: %v", err)
	}
	if loaded == nil || loaded.Address != account.Address {
		t.Fatalf("loaded account %+v, want address %s", loaded, account.Address)
	}

	if err := store.ClearAccount(); err != nil {
		t.Fatalf("clearing account: %v", err)
	}
	loaded, err = store.LoadAccount()
	if err != nil {
		t.Fatalf("loading after clear: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil account after clear")
	}
}

func TestMnemonicLifecycle(t *testing.T) {
	store := newTestFlatStore(t)

	mnemonic, err := store.LoadMnemonic()
	if err != nil {
		t.Fatalf("loading empty mnemonic: %v", err)
	}
	if mnemonic != "" {
		t.Fatal("expected empty mnemonic before save")
	}

	if err := store.SaveMnemonic("abandon ability able test"); err != nil {
		t.Fatalf("saving mnemonic: %v", err)
	}
	mnemonic, err = store.LoadMnemonic()
	if err != nil {
		t.Fatal(err)
	}
	if mnemonic != "abandon ability able test" {
		t.Fatalf("loaded mnemonic %q", mnemonic)
	}

	if err := store.ClearMnemonic(); err != nil {
		t.Fatalf("clearing mnemonic: %v", err)
	}
	mnemonic, _ = store.LoadMnemonic()
	if mnemonic != "" {
		t.Fatal("expected empty mnemonic after clear")
	}
}

func TestTransfersCappedNewestFirst(t *testing.T) {
	store := newTestFlatStore(t)

	transfers := make([]Transfer, 0, MaxRetainedItems+20)
	for i := 0; i < MaxRetainedItems+20; i++ {
		transfers = append(transfers, Transfer{
			ID:         fmt.Sprintf("transfer-%d", i),
			AmountSats: int64(i),
			Status:     StatusCompleted,
			Timestamp:  time.Now(),
		})
	}
	if err := store.SaveTransfers(transfers); err != nil {
		t.Fatalf("saving transfers: %v", err)
	}

	loaded, err := store.LoadTransfers()
	if err != nil {
		t.Fatalf("loading transfers: %v", err)
	}
	if len(loaded) != MaxRetainedItems {
		t.Fatalf("expected %d retained transfers, got %d", MaxRetainedItems, len(loaded))
	}
	// The head of the list survives the cap, the tail is dropped.
	if loaded[0].ID != "transfer-0" {
		t.Errorf("first retained transfer = %s, want transfer-0", loaded[0].ID)
	}
	if loaded[len(loaded)-1].ID != fmt.Sprintf("transfer-%d", MaxRetainedItems-1) {
		t.Errorf("last retained transfer = %s", loaded[len(loaded)-1].ID)
	}
}

func TestBalancePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state")

	store, err := OpenGravitonStore(path)
	if err != nil {
		t.Fatal(err)
	}
	balance := WalletBalance{
		Sats:          1500,
		TokenBalances: map[string]uint64{"tok-1": 42},
		LastUpdated:   time.Now(),
	}
	if err := store.SaveWalletBalance(balance); err != nil {
		t.Fatalf("saving balance: %v", err)
	}

	reopened, err := OpenGravitonStore(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	loaded, err := reopened.LoadWalletBalance()
	if err != nil {
		t.Fatalf("loading balance: %v", err)
	}
	if loaded == nil || loaded.Sats != 1500 || loaded.TokenBalances["tok-1"] != 42 {
		t.Fatalf("loaded balance %+v", loaded)
	}
}

func TestClearAllWipesEverything(t *testing.T) {
	store := newTestFlatStore(t)

	if err := store.SaveMnemonic("some words"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTransfers([]Transfer{{ID: "t1"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDepositAddresses([]string{"bc1qaddr"}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("clearing store: %v", err)
	}

	if mnemonic, _ := store.LoadMnemonic(); mnemonic != "" {
		t.Error("mnemonic survived ClearAll")
	}
	if transfers, _ := store.LoadTransfers(); len(transfers) != 0 {
		t.Error("transfers survived ClearAll")
	}
	if addrs, _ := store.LoadDepositAddresses(); len(addrs) != 0 {
		t.Error("deposit addresses survived ClearAll")
	}
}
