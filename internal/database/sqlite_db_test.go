package walletstatedb

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestIndexedStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return store
}

func TestRecentTransactionsOrderedAndLimited(t *testing.T) {
	store := newTestIndexedStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := store.SaveTransaction(UMATransaction{
			ID:        fmt.Sprintf("tx-%d", i),
			Type:      "send",
			Address:   "$alice@vasp1.com",
			Amount:    float64(i + 1),
			Currency:  "USD",
			Status:    StatusCompleted,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("saving transaction %d: %v", i, err)
		}
	}

	txs, err := store.RecentTransactions(3)
	if err != nil {
		t.Fatalf("loading transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].ID != "tx-4" || txs[2].ID != "tx-2" {
		t.Errorf("unexpected ordering: %s, %s, %s", txs[0].ID, txs[1].ID, txs[2].ID)
	}
}

func TestSaveTransactionUpsertsByID(t *testing.T) {
	store := newTestIndexedStore(t)

	tx := UMATransaction{
		ID:        "tx-1",
		Type:      "send",
		Amount:    10,
		Status:    StatusPending,
		Timestamp: time.Now(),
	}
	if err := store.SaveTransaction(tx); err != nil {
		t.Fatal(err)
	}

	tx.Status = StatusCompleted
	tx.TxID = "onchain-1"
	if err := store.SaveTransaction(tx); err != nil {
		t.Fatal(err)
	}

	txs, err := store.RecentTransactions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected the update to replace the row, got %d rows", len(txs))
	}
	if txs[0].Status != StatusCompleted || txs[0].TxID != "onchain-1" {
		t.Errorf("updated transaction %+v", txs[0])
	}
}

func TestTransactionsByType(t *testing.T) {
	store := newTestIndexedStore(t)

	now := time.Now()
	for i, txType := range []string{"send", "receive", "send"} {
		err := store.SaveTransaction(UMATransaction{
			ID:        fmt.Sprintf("tx-%d", i),
			Type:      txType,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	sends, err := store.TransactionsByType("send", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sends))
	}
	for _, tx := range sends {
		if tx.Type != "send" {
			t.Errorf("unexpected type %s", tx.Type)
		}
	}
}

func TestActivityDetailsRoundTrip(t *testing.T) {
	store := newTestIndexedStore(t)

	err := store.SaveActivity(ActivityLog{
		ID:        "log-1",
		Type:      ActivityLNURLPRequest,
		Timestamp: time.Now(),
		Status:    ActivityPending,
		Details: map[string]interface{}{
			"receiver": "$bob@vasp2.com",
		},
	})
	if err != nil {
		t.Fatalf("saving activity: %v", err)
	}

	entries, err := store.RecentActivities(10)
	if err != nil {
		t.Fatalf("loading activities: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Details["receiver"] != "$bob@vasp2.com" {
		t.Errorf("details did not survive the round trip: %+v", entries[0].Details)
	}
}

func TestRecipientUpsertByAddress(t *testing.T) {
	store := newTestIndexedStore(t)

	if err := store.SaveRecipient(Recipient{ID: "r-1", Name: "Alice", Address: "$alice@vasp1.com"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRecipient(Recipient{ID: "r-1", Name: "Alice J", Address: "$alice@vasp1.com", IsOnline: true}); err != nil {
		t.Fatal(err)
	}

	recipients, err := store.Recipients()
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 1 {
		t.Fatalf("expected 1 recipient after upsert, got %d", len(recipients))
	}
	if recipients[0].Name != "Alice J" || !recipients[0].IsOnline {
		t.Errorf("recipient not updated: %+v", recipients[0])
	}

	found, err := store.FindRecipientByAddress("$alice@vasp1.com")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.Name != "Alice J" {
		t.Errorf("lookup returned %+v", found)
	}

	missing, err := store.FindRecipientByAddress("$nobody@vasp9.com")
	if err != nil {
		t.Fatalf("unknown address should not error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown address, got %+v", missing)
	}
}

func TestChallengeLifecycle(t *testing.T) {
	store := newTestIndexedStore(t)

	challenge := Challenge{
		Challenge: "abc-2024",
		Hash:      "deadbeef",
		Status:    "unused",
		Npub:      "npub1test",
		CreatedAt: time.Now(),
	}
	if err := store.SaveChallenge(challenge); err != nil {
		t.Fatalf("saving challenge: %v", err)
	}

	loaded, err := store.GetChallenge("deadbeef")
	if err != nil {
		t.Fatalf("loading challenge: %v", err)
	}
	if loaded.Status != "unused" {
		t.Fatalf("fresh challenge status = %s", loaded.Status)
	}

	if err := store.MarkChallengeAsUsed("deadbeef"); err != nil {
		t.Fatalf("marking challenge: %v", err)
	}
	loaded, err = store.GetChallenge("deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != "used" {
		t.Errorf("challenge status = %s, want used", loaded.Status)
	}
	if loaded.UsedAt.IsZero() {
		t.Error("used_at not recorded")
	}
}

func TestExpireOldChallenges(t *testing.T) {
	store := newTestIndexedStore(t)

	old := Challenge{
		Challenge: "old",
		Hash:      "hash-old",
		Status:    "unused",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	fresh := Challenge{
		Challenge: "fresh",
		Hash:      "hash-fresh",
		Status:    "unused",
		CreatedAt: time.Now(),
	}
	if err := store.SaveChallenge(old); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveChallenge(fresh); err != nil {
		t.Fatal(err)
	}

	if err := store.ExpireOldChallenges(); err != nil {
		t.Fatalf("expiring challenges: %v", err)
	}

	expired, err := store.GetChallenge("hash-old")
	if err != nil {
		t.Fatal(err)
	}
	if expired.Status != "expired" {
		t.Errorf("old challenge status = %s, want expired", expired.Status)
	}

	kept, err := store.GetChallenge("hash-fresh")
	if err != nil {
		t.Fatal(err)
	}
	if kept.Status != "unused" {
		t.Errorf("fresh challenge status = %s, want unused", kept.Status)
	}
}

func TestIndexedClearAll(t *testing.T) {
	store := newTestIndexedStore(t)

	if err := store.SaveTransaction(UMATransaction{ID: "tx-1", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRecipient(Recipient{ID: "r-1", Address: "$a@b.com"}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("clearing store: %v", err)
	}

	txs, err := store.RecentTransactions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Error("transactions survived ClearAll")
	}
	recipients, err := store.Recipients()
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 0 {
		t.Error("recipients survived ClearAll")
	}
}
