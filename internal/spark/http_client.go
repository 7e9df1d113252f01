package spark

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient talks JSON to a Spark wallet service endpoint. Every call uses
// the caller's context plus the configured per-request timeout.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a client for the Spark service at baseURL
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %v", err)
		}
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to spark service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("spark service returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding spark response: %v", err)
	}
	return nil
}

func (c *HTTPClient) Initialize(ctx context.Context, seed []byte, accountNumber uint32) error {
	body := map[string]interface{}{
		"seed":           hex.EncodeToString(seed),
		"account_number": accountNumber,
	}
	return c.do(ctx, http.MethodPost, "/v1/wallet/initialize", body, nil)
}

func (c *HTTPClient) GetSparkAddress(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/address", nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("spark service returned empty address")
	}
	return out.Address, nil
}

func (c *HTTPClient) GetIdentityPublicKey(ctx context.Context) (string, error) {
	var out struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/identity", nil, &out); err != nil {
		return "", err
	}
	if out.PublicKey == "" {
		return "", fmt.Errorf("spark service returned empty public key")
	}
	return out.PublicKey, nil
}

func (c *HTTPClient) GetBalance(ctx context.Context) (*Balance, error) {
	var out Balance
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, receiverAddress string, amountSats int64) (*TransferResult, error) {
	body := map[string]interface{}{
		"receiver_spark_address": receiverAddress,
		"amount_sats":            amountSats,
	}
	var out TransferResult
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("spark service returned transfer without id")
	}
	return &out, nil
}

func (c *HTTPClient) GetTransfers(ctx context.Context, limit, offset int) (*TransfersPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var out TransfersPage
	if err := c.do(ctx, http.MethodGet, "/v1/transfers?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateLightningInvoice(ctx context.Context, params InvoiceParams) (*Invoice, error) {
	var out Invoice
	if err := c.do(ctx, http.MethodPost, "/v1/lightning/invoices", params, &out); err != nil {
		return nil, err
	}
	if out.EncodedInvoice == "" {
		return nil, fmt.Errorf("spark service returned invoice without payment request")
	}
	return &out, nil
}

func (c *HTTPClient) PayLightningInvoice(ctx context.Context, params PayInvoiceParams) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/v1/lightning/payments", params, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("spark service returned payment without id")
	}
	return &out, nil
}

func (c *HTTPClient) LightningSendFeeEstimate(ctx context.Context, encodedInvoice string) (int64, error) {
	body := map[string]string{"encoded_invoice": encodedInvoice}
	var out struct {
		FeeSats int64 `json:"fee_sats"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/lightning/fee-estimate", body, &out); err != nil {
		return 0, err
	}
	return out.FeeSats, nil
}

func (c *HTTPClient) SwapFeeEstimate(ctx context.Context, amountSats int64) (int64, error) {
	body := map[string]int64{"amount_sats": amountSats}
	var out struct {
		FeeSats int64 `json:"fee_sats"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/swaps/fee-estimate", body, &out); err != nil {
		return 0, err
	}
	return out.FeeSats, nil
}

func (c *HTTPClient) SingleUseDepositAddress(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/address", nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("spark service returned empty deposit address")
	}
	return out.Address, nil
}

func (c *HTTPClient) UnusedDepositAddresses(ctx context.Context) ([]string, error) {
	var out struct {
		Addresses []string `json:"addresses"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/deposits/unused-addresses", nil, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}

func (c *HTTPClient) StaticDepositAddress(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/static-address", nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("spark service returned empty static deposit address")
	}
	return out.Address, nil
}

func (c *HTTPClient) ClaimDeposit(ctx context.Context, txID string) (*TransferResult, error) {
	body := map[string]string{"tx_id": txID}
	var out TransferResult
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/claim", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ClaimStaticDepositQuote(ctx context.Context, txID string, outputIndex int) (*ClaimQuote, error) {
	body := map[string]interface{}{
		"tx_id":        txID,
		"output_index": outputIndex,
	}
	var out ClaimQuote
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/static-claim-quote", body, &out); err != nil {
		return nil, err
	}
	if out.Signature == "" {
		return nil, fmt.Errorf("spark service returned claim quote without signature")
	}
	return &out, nil
}

func (c *HTTPClient) ClaimStaticDeposit(ctx context.Context, quote ClaimQuote) (*TransferResult, error) {
	var out TransferResult
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/static-claim", quote, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RefundStaticDeposit(ctx context.Context, depositTxID, destinationAddress string, feeSats int64) (string, error) {
	body := map[string]interface{}{
		"deposit_transaction_id": depositTxID,
		"destination_address":    destinationAddress,
		"fee_sats":               feeSats,
	}
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/deposits/static-refund", body, &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", fmt.Errorf("spark service returned refund without tx id")
	}
	return out.TxID, nil
}

func (c *HTTPClient) Withdraw(ctx context.Context, params WithdrawParams) (*CoopExit, error) {
	var out CoopExit
	if err := c.do(ctx, http.MethodPost, "/v1/withdrawals", params, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("spark service returned withdrawal without id")
	}
	return &out, nil
}

func (c *HTTPClient) WithdrawalFeeQuote(ctx context.Context, amountSats int64, withdrawalAddress string) (*FeeQuote, error) {
	body := map[string]interface{}{
		"amount_sats":        amountSats,
		"withdrawal_address": withdrawalAddress,
	}
	var out FeeQuote
	if err := c.do(ctx, http.MethodPost, "/v1/withdrawals/fee-quote", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CoopExitRequest(ctx context.Context, id string) (*CoopExit, error) {
	var out CoopExit
	if err := c.do(ctx, http.MethodGet, "/v1/withdrawals/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) TransferTokens(ctx context.Context, params TokenTransferParams) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tokens/transfer", params, &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return "", fmt.Errorf("spark service returned token transfer without tx id")
	}
	return out.TxID, nil
}

func (c *HTTPClient) QueryTokenTransactions(ctx context.Context, tokenIdentifier string) ([]TokenTransaction, error) {
	query := url.Values{}
	query.Set("token", tokenIdentifier)

	var out struct {
		Transactions []TokenTransaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tokens/transactions?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *HTTPClient) TokenL1Address(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tokens/l1-address", nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
