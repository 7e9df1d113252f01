package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/logger"
	"github.com/sparkuma/spark-wallet/internal/uma"
)

// HandleLNURLP answers lnurlp lookups for local receivers. A plain LNURL
// client gets the base response; a request carrying a signature parameter
// is treated as UMA and additionally gets currencies, payer data options,
// and the receiver's nostr pubkey.
func (a *API) HandleLNURLP(w http.ResponseWriter, r *http.Request) {
	receiver := r.URL.Query().Get("receiver")
	if receiver == "" {
		writeError(w, http.StatusBadRequest, "receiver parameter is required")
		return
	}

	username, domain, err := splitUMAAddress(receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appURL := strings.TrimRight(viper.GetString("app_url"), "/")
	callback := fmt.Sprintf("%s/api/uma/payreq?receiver=%s", appURL, url.QueryEscape(receiver))

	metadata, err := json.Marshal([][]string{
		{"text/plain", fmt.Sprintf("Pay to %s user %s", domain, username)},
		{"text/identifier", receiver},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build metadata")
		return
	}

	resp := uma.LNURLPResponse{
		Callback:    callback,
		MinSendable: viper.GetInt64("uma_min_sendable_msats"),
		MaxSendable: viper.GetInt64("uma_max_sendable_msats"),
		Metadata:    string(metadata),
		Tag:         "payRequest",
	}

	// The signature parameter marks a UMA-aware sender.
	if r.URL.Query().Get("signature") != "" {
		resp.Currencies = supportedCurrencies()
		resp.PayerData = &uma.PayerDataOptions{
			Name:       uma.PayerDataOption{Mandatory: false},
			Email:      uma.PayerDataOption{Mandatory: false},
			Identifier: uma.PayerDataOption{Mandatory: true},
			Compliance: uma.PayerDataOption{Mandatory: true},
		}
		resp.UmaVersion = "1.0"
		resp.NostrPubkey = viper.GetString("uma_nostr_pubkey")
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleLNURLPCallback acknowledges an lnurlp response posted back by a
// counterparty VASP.
func (a *API) HandleLNURLPCallback(w http.ResponseWriter, r *http.Request) {
	var resp uma.LNURLPResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	logger.Info("Received lnurlp callback, callback URL: ", resp.Callback)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "LNURLP response processed",
	})
}

// HandlePayReq creates an invoice for an incoming pay request. Lightspark
// credentials and the UMA certificates must be configured.
func (a *API) HandlePayReq(w http.ResponseWriter, r *http.Request) {
	receiver := r.URL.Query().Get("receiver")
	if receiver == "" {
		writeError(w, http.StatusBadRequest, "receiver parameter is required")
		return
	}
	if _, _, err := splitUMAAddress(receiver); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.Certs == nil {
		writeError(w, http.StatusInternalServerError, "UMA certificates not configured")
		return
	}
	if a.Lightspark == nil {
		writeError(w, http.StatusInternalServerError, "lightspark credentials not configured")
		return
	}

	var payReq uma.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&payReq); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse pay request")
		return
	}
	if payReq.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	conversionRate := viper.GetInt64("payreq_conversion_rate")
	receiverFees := viper.GetInt64("receiver_fees_msats")

	// Amount arrives in the sending currency's smallest unit; msats are
	// priced through the conversion rate, with receiver fees on top.
	amountMsats := payReq.Amount * conversionRate
	if payReq.CurrencyCode == "" || payReq.CurrencyCode == "SAT" {
		amountMsats = payReq.Amount
	}
	amountMsats += receiverFees

	metadata, _ := json.Marshal([][]string{
		{"text/plain", fmt.Sprintf("Pay to %s", receiver)},
		{"text/identifier", receiver},
	})

	nodeID := viper.GetString("lightspark_node_id")
	invoice, err := a.Lightspark.CreateUmaInvoice(r.Context(), nodeID, amountMsats, string(metadata))
	if err != nil {
		logger.Error("failed to create invoice:", err)
		writeError(w, http.StatusBadGateway, "failed to create invoice")
		return
	}

	writeJSON(w, http.StatusOK, uma.PayReqResponse{
		EncodedInvoice: invoice.EncodedPaymentRequest,
		Routes:         []interface{}{},
		Converted: &uma.ConvertedAmount{
			Amount:       payReq.Amount,
			CurrencyCode: currencyOrDefault(payReq.CurrencyCode),
			Decimals:     2,
			Multiplier:   conversionRate,
			Fee:          receiverFees,
		},
	})
}

// HandleSendPayment pays a fetched invoice through Lightspark. Fees are
// capped at the configured maximum regardless of what the caller asks for.
func (a *API) HandleSendPayment(w http.ResponseWriter, r *http.Request) {
	if a.Lightspark == nil {
		writeError(w, http.StatusInternalServerError, "lightspark credentials not configured")
		return
	}

	var sendReq uma.SendPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&sendReq); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse send request")
		return
	}
	if strings.TrimSpace(sendReq.Invoice) == "" {
		writeError(w, http.StatusBadRequest, "invoice is required")
		return
	}

	maxFees := viper.GetInt64("max_payment_fee_msats")
	if sendReq.MaxFeesMsats > 0 && sendReq.MaxFeesMsats < maxFees {
		maxFees = sendReq.MaxFeesMsats
	}

	nodeID := viper.GetString("lightspark_node_id")
	payment, err := a.Lightspark.PayUmaInvoice(r.Context(), nodeID, sendReq.Invoice, maxFees)
	if err != nil {
		logger.Error("failed to send payment:", err)
		writeJSON(w, http.StatusBadGateway, uma.SendPaymentResponse{
			Success: false,
			Error:   "failed to send payment",
		})
		return
	}

	writeJSON(w, http.StatusOK, uma.SendPaymentResponse{
		Success: true,
		Payment: &uma.PaymentStatus{ID: payment.ID, Status: payment.Status},
	})
}

func splitUMAAddress(address string) (username, domain string, err error) {
	trimmed := strings.TrimPrefix(address, "$")
	parts := strings.Split(trimmed, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid UMA address %q, expected $user@domain", address)
	}
	return parts[0], parts[1], nil
}

func currencyOrDefault(code string) string {
	if code == "" {
		return "SAT"
	}
	return code
}

func supportedCurrencies() []uma.Currency {
	return []uma.Currency{
		{
			Code:       "USD",
			Name:       "US Dollar",
			Symbol:     "$",
			Multiplier: viper.GetInt64("payreq_conversion_rate"),
			Decimals:   2,
			Convertible: uma.Convertible{
				Min: 100,
				Max: 1000000,
			},
		},
		{
			Code:       "BTC",
			Name:       "Bitcoin",
			Symbol:     "₿",
			Multiplier: 100000000,
			Decimals:   8,
			Convertible: uma.Convertible{
				Min: 1,
				Max: 10000000000,
			},
		},
	}
}
