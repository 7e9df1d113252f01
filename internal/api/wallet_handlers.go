package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/spark"
	"github.com/sparkuma/spark-wallet/internal/wallet"
)

// HandleBalance returns the last known wallet balance, refreshing it first.
func (a *API) HandleBalance(w http.ResponseWriter, r *http.Request) {
	if !a.Session.Initialized() {
		writeError(w, http.StatusServiceUnavailable, "wallet not initialized")
		return
	}
	// A failed refresh still serves the last known balance.
	_ = a.Session.RefreshBalance(r.Context())
	writeJSON(w, http.StatusOK, a.Session.Balance())
}

// HandleTransfers lists the transfer history, newest first.
func (a *API) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.Transfers())
}

// HandleTransfer sends sats to another spark address.
func (a *API) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverAddress string `json:"receiver_spark_address"`
		AmountSats      int64  `json:"amount_sats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse transfer request")
		return
	}

	transfer, err := a.Session.Transfer(r.Context(), req.ReceiverAddress, req.AmountSats)
	if err != nil {
		writeOpError(w, err, transfer)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// HandleCreateInvoice creates a Lightning receive invoice.
func (a *API) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AmountSats int64  `json:"amount_sats"`
		Memo       string `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse invoice request")
		return
	}

	invoice, err := a.Session.CreateLightningInvoice(r.Context(), req.AmountSats, req.Memo)
	if err != nil {
		writeOpError(w, err, invoice)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// HandlePayInvoice pays a BOLT11 invoice from the wallet.
func (a *API) HandlePayInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Invoice    string `json:"invoice"`
		MaxFeeSats int64  `json:"max_fee_sats"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse payment request")
		return
	}

	sendReq, err := a.Session.PayLightningInvoice(r.Context(), req.Invoice, req.MaxFeeSats)
	if err != nil {
		writeOpError(w, err, sendReq)
		return
	}
	writeJSON(w, http.StatusOK, sendReq)
}

// HandleDepositAddress generates a fresh single-use deposit address.
func (a *API) HandleDepositAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := a.Session.SingleUseDepositAddress(r.Context())
	if err != nil && addr == "" {
		writeOpError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

// HandleUnusedDepositAddresses lists generated addresses with no deposits.
func (a *API) HandleUnusedDepositAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := a.Session.UnusedDepositAddresses(r.Context())
	if err != nil {
		writeOpError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"addresses": addrs})
}

// HandleWithdraw starts a cooperative on-chain exit.
func (a *API) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var params spark.WithdrawParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse withdrawal request")
		return
	}

	exit, err := a.Session.Withdraw(r.Context(), params)
	if err != nil {
		writeOpError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, exit)
}

// HandleUMAAccount returns the local UMA account, 404 when none exists.
func (a *API) HandleUMAAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.UMA.Account()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "no account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleCreateUMAAccount creates the local UMA account.
func (a *API) HandleCreateUMAAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse account request")
		return
	}

	account, err := a.UMA.CreateAccount(req.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleUMATransactions lists recent UMA transactions.
func (a *API) HandleUMATransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	var (
		txs []walletstatedb.UMATransaction
		err error
	)
	if txType := r.URL.Query().Get("type"); txType != "" {
		txs, err = a.UMA.TransactionsByType(txType, limit)
	} else {
		txs, err = a.UMA.RecentTransactions(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// HandleActivities lists recent protocol audit entries.
func (a *API) HandleActivities(w http.ResponseWriter, r *http.Request) {
	entries, err := a.UMA.RecentActivities(queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load activities")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRecipients lists known counterparties.
func (a *API) HandleRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := a.UMA.Recipients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load recipients")
		return
	}
	writeJSON(w, http.StatusOK, recipients)
}

// HandleAddRecipient saves a counterparty.
func (a *API) HandleAddRecipient(w http.ResponseWriter, r *http.Request) {
	var recipient walletstatedb.Recipient
	if err := json.NewDecoder(r.Body).Decode(&recipient); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse recipient")
		return
	}
	if err := a.UMA.AddRecipient(recipient); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recipient)
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return 0
}

// writeOpError maps a wallet operation error onto an HTTP status. A
// storage failure after a successful operation still returns the record,
// flagged so the caller knows persistence is behind.
func writeOpError(w http.ResponseWriter, err error, partial interface{}) {
	var opErr *wallet.OpError
	if !errors.As(err, &opErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch opErr.Kind {
	case wallet.KindValidation:
		writeError(w, http.StatusBadRequest, opErr.Error())
	case wallet.KindConfig:
		writeError(w, http.StatusServiceUnavailable, opErr.Error())
	case wallet.KindExternal:
		writeError(w, http.StatusBadGateway, opErr.Error())
	case wallet.KindStorage:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result":    partial,
			"warning":   "operation succeeded but could not be persisted",
			"errorKind": opErr.Kind.String(),
		})
	default:
		writeError(w, http.StatusInternalServerError, opErr.Error())
	}
}
