package uma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
)

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	t.Cleanup(viper.Reset)

	viper.Set("usd_to_btc_rate", 0.000025)
	viper.Set("fee_network", 0.001)
	viper.Set("fee_service", 0.002)
	viper.Set("max_payment_fee_msats", 1000)
	viper.Set("vasp_domain", "spark-wallet.com")
	viper.Set("confirm_failure_policy", PolicyAbandon)

	dir := t.TempDir()
	flat, err := walletstatedb.OpenGravitonStore(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("opening flat store: %v", err)
	}
	indexed, err := walletstatedb.OpenSQLiteStore(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("opening indexed store: %v", err)
	}

	return NewService(flat, indexed, NewProtocolClient(baseURL))
}

func addRecipient(t *testing.T, s *Service, address string) {
	t.Helper()
	err := s.AddRecipient(walletstatedb.Recipient{Name: "Test", Address: address})
	if err != nil {
		t.Fatalf("adding recipient: %v", err)
	}
}

func TestCreateAccountLogsActivity(t *testing.T) {
	s := newTestService(t, "http://unused")

	account, err := s.CreateAccount("payer")
	if err != nil {
		t.Fatalf("creating account: %v", err)
	}

	entries, err := s.RecentActivities(10)
	if err != nil {
		t.Fatalf("loading activities: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 activity entry, got %d", len(entries))
	}
	if entries[0].Details["action"] != "account_created" {
		t.Errorf("details action = %v, want account_created", entries[0].Details["action"])
	}
	if entries[0].Details["address"] != account.Address {
		t.Errorf("details address = %v, want %s", entries[0].Details["address"], account.Address)
	}
}

func TestFlowTransitions(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")

	if s.Flow() != nil {
		t.Fatal("expected no flow before start")
	}

	flow := s.StartSendPayment()
	if flow.Step != StepSelectRecipient {
		t.Fatalf("expected step %s, got %s", StepSelectRecipient, flow.Step)
	}

	flow, err := s.SelectRecipient("$alice@vasp1.com")
	if err != nil {
		t.Fatalf("selecting recipient: %v", err)
	}
	if flow.Step != StepEnterAmount {
		t.Fatalf("expected step %s, got %s", StepEnterAmount, flow.Step)
	}

	flow, err = s.SetPaymentAmount(50, "USD")
	if err != nil {
		t.Fatalf("setting amount: %v", err)
	}
	if flow.Step != StepConfirm {
		t.Fatalf("expected step %s, got %s", StepConfirm, flow.Step)
	}
}

func TestFlowStepOrderEnforced(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")

	if _, err := s.SetPaymentAmount(10, "USD"); err == nil {
		t.Fatal("expected error setting amount with no flow")
	}
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err == nil {
		t.Fatal("expected error selecting recipient with no flow")
	}

	s.StartSendPayment()
	if _, err := s.SetPaymentAmount(10, "USD"); err == nil {
		t.Fatal("expected error setting amount before recipient selection")
	}
	if _, err := s.ConfirmPayment(context.Background()); err == nil {
		t.Fatal("expected error confirming before amount entry")
	}
}

func TestFlowUnknownRecipientRejected(t *testing.T) {
	s := newTestService(t, "http://unused")
	s.StartSendPayment()

	if _, err := s.SelectRecipient("$nobody@vasp9.com"); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
	if s.Flow().Step != StepSelectRecipient {
		t.Fatal("flow should stay at recipient selection after a failed lookup")
	}
}

func TestFlowAmountValidation(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")
	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatalf("selecting recipient: %v", err)
	}

	for _, amount := range []float64{0, -5} {
		if _, err := s.SetPaymentAmount(amount, "USD"); err == nil {
			t.Fatalf("expected error for amount %v", amount)
		}
	}
	if s.Flow().Step != StepEnterAmount {
		t.Fatal("flow should stay at amount entry after invalid input")
	}
}

func TestFlowFeeAndConversionMath(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")
	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatalf("selecting recipient: %v", err)
	}

	flow, err := s.SetPaymentAmount(100, "USD")
	if err != nil {
		t.Fatalf("setting amount: %v", err)
	}

	if got, want := flow.ReceivingAmount, 100*0.000025; got != want {
		t.Errorf("receiving amount = %v, want %v", got, want)
	}
	if got, want := flow.Fees.Total, flow.Fees.Network+flow.Fees.Service; got != want {
		t.Errorf("total fee = %v, want network+service = %v", got, want)
	}
}

func TestFlowNonUSDAmountDeliversUSD(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")
	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatalf("selecting recipient: %v", err)
	}

	flow, err := s.SetPaymentAmount(0.5, "BTC")
	if err != nil {
		t.Fatalf("setting amount: %v", err)
	}
	if flow.Currency != "BTC" {
		t.Errorf("currency = %s, want BTC", flow.Currency)
	}
	if flow.ReceivingCurrency != "USD" {
		t.Errorf("receiving currency = %s, want USD", flow.ReceivingCurrency)
	}
	if flow.ReceivingAmount != 0.5 {
		t.Errorf("receiving amount = %v, want 0.5", flow.ReceivingAmount)
	}
}

func TestFlowCancelBeforeDispatch(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")

	// Cancel is allowed from each of the three pre-dispatch steps.
	s.StartSendPayment()
	if err := s.CancelPayment(); err != nil {
		t.Fatalf("cancel at %s: %v", StepSelectRecipient, err)
	}
	if s.Flow() != nil {
		t.Fatal("expected no flow after cancel")
	}

	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelPayment(); err != nil {
		t.Fatalf("cancel at %s: %v", StepEnterAmount, err)
	}

	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetPaymentAmount(10, "USD"); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelPayment(); err != nil {
		t.Fatalf("cancel at %s: %v", StepConfirm, err)
	}
}

func TestFlowRestartOverwrites(t *testing.T) {
	s := newTestService(t, "http://unused")
	addRecipient(t, s, "$alice@vasp1.com")

	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatal(err)
	}

	flow := s.StartSendPayment()
	if flow.Step != StepSelectRecipient {
		t.Fatalf("restart should reset to %s, got %s", StepSelectRecipient, flow.Step)
	}
	if flow.Recipient != nil {
		t.Fatal("restart should drop the previous recipient")
	}
}

// fakeVASP serves the three protocol endpoints in-process.
func fakeVASP(t *testing.T, failSend bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/uma/lnurlp", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LNURLPResponse{
			Callback:    server.URL + "/api/uma/payreq",
			MinSendable: 1000,
			MaxSendable: 100000000000,
			Metadata:    `[["text/plain","Pay"]]`,
			Tag:         "payRequest",
		})
	})
	mux.HandleFunc("/api/uma/payreq", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PayReqResponse{
			EncodedInvoice: "lnbc1fakeinvoice",
			Routes:         []interface{}{},
		})
	})
	mux.HandleFunc("/api/uma/send-payment", func(w http.ResponseWriter, r *http.Request) {
		if failSend {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(SendPaymentResponse{Success: false, Error: "no route"})
			return
		}
		json.NewEncoder(w).Encode(SendPaymentResponse{
			Success: true,
			Payment: &PaymentStatus{ID: "pay-1", Status: "SUCCESS"},
		})
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func confirmReadyFlow(t *testing.T, s *Service) {
	t.Helper()
	addRecipient(t, s, "$alice@vasp1.com")
	s.StartSendPayment()
	if _, err := s.SelectRecipient("$alice@vasp1.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetPaymentAmount(20, "USD"); err != nil {
		t.Fatal(err)
	}
}

func TestConfirmPaymentCompletes(t *testing.T) {
	server := fakeVASP(t, false)
	s := newTestService(t, server.URL)
	confirmReadyFlow(t, s)

	flow, err := s.ConfirmPayment(context.Background())
	if err != nil {
		t.Fatalf("confirming payment: %v", err)
	}
	if flow.Step != StepComplete {
		t.Fatalf("expected step %s, got %s", StepComplete, flow.Step)
	}

	txs, err := s.RecentTransactions(10)
	if err != nil {
		t.Fatalf("loading transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].Status != walletstatedb.StatusCompleted {
		t.Errorf("transaction status = %s, want %s", txs[0].Status, walletstatedb.StatusCompleted)
	}

	entries, err := s.RecentActivities(20)
	if err != nil {
		t.Fatalf("loading activities: %v", err)
	}
	// Three protocol steps, each bracketed by pending and success entries.
	if len(entries) != 6 {
		t.Fatalf("expected 6 activity entries, got %d", len(entries))
	}
}

func TestConfirmPaymentCarriesPayerIdentity(t *testing.T) {
	var got PayRequest
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/uma/lnurlp", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LNURLPResponse{
			Callback: server.URL + "/api/uma/payreq",
			Tag:      "payRequest",
		})
	})
	mux.HandleFunc("/api/uma/payreq", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding pay request: %v", err)
		}
		json.NewEncoder(w).Encode(PayReqResponse{EncodedInvoice: "lnbc1fakeinvoice"})
	})
	mux.HandleFunc("/api/uma/send-payment", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SendPaymentResponse{
			Success: true,
			Payment: &PaymentStatus{ID: "pay-1", Status: "SUCCESS"},
		})
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	s := newTestService(t, server.URL)
	account, err := s.CreateAccount("payer")
	if err != nil {
		t.Fatalf("creating account: %v", err)
	}
	confirmReadyFlow(t, s)

	if _, err := s.ConfirmPayment(context.Background()); err != nil {
		t.Fatalf("confirming payment: %v", err)
	}
	if got.PayerIdentifier != account.Address {
		t.Errorf("payerIdentifier = %q, want %q", got.PayerIdentifier, account.Address)
	}
	if got.PayerKycStatus != "VERIFIED" {
		t.Errorf("payerKycStatus = %q, want VERIFIED", got.PayerKycStatus)
	}
}

func TestConfirmPaymentFailureAbandons(t *testing.T) {
	server := fakeVASP(t, true)
	s := newTestService(t, server.URL)
	confirmReadyFlow(t, s)

	if _, err := s.ConfirmPayment(context.Background()); err == nil {
		t.Fatal("expected confirm to fail")
	}
	if s.Flow() != nil {
		t.Fatal("abandon policy should clear the flow")
	}
	if s.LastFlowError() == nil {
		t.Fatal("expected the failure to stay retrievable")
	}

	txs, err := s.RecentTransactions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Status != walletstatedb.StatusFailed {
		t.Fatalf("expected one failed transaction, got %+v", txs)
	}
}

func TestConfirmPaymentFailureReturnsToConfirm(t *testing.T) {
	server := fakeVASP(t, true)
	s := newTestService(t, server.URL)
	s.failurePolicy = PolicyReturnToConfirm
	confirmReadyFlow(t, s)

	if _, err := s.ConfirmPayment(context.Background()); err == nil {
		t.Fatal("expected confirm to fail")
	}

	flow := s.Flow()
	if flow == nil || flow.Step != StepConfirm {
		t.Fatalf("return_to_confirm policy should land on %s, got %+v", StepConfirm, flow)
	}
	if flow.Error == "" {
		t.Fatal("expected the flow to carry the failure message")
	}
}

func TestConfirmFailureActivitiesBracketed(t *testing.T) {
	server := fakeVASP(t, true)
	s := newTestService(t, server.URL)
	confirmReadyFlow(t, s)

	_, _ = s.ConfirmPayment(context.Background())

	entries, err := s.RecentActivities(20)
	if err != nil {
		t.Fatal(err)
	}
	var failed int
	for _, e := range entries {
		if e.Status == walletstatedb.ActivityFailed {
			failed++
			if e.Type != walletstatedb.ActivityPaymentSent {
				t.Errorf("unexpected failed entry type %s", e.Type)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed entry, got %d", failed)
	}
}
