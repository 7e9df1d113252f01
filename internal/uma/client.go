package uma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProtocolClient talks to the UMA protocol endpoints: the lnurlp lookup,
// the payreq callback, and payment dispatch. The endpoints may be served
// by this process or by a remote VASP; the client does not care.
type ProtocolClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewProtocolClient builds a client rooted at baseURL (the app URL when
// talking to the local routes).
func NewProtocolClient(baseURL string) *ProtocolClient {
	timeout := viper.GetDuration("http_timeout")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ProtocolClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResolveLNURLP looks up a receiver's payment parameters. The receiver is
// a UMA address like $alice@vasp.com.
func (c *ProtocolClient) ResolveLNURLP(ctx context.Context, receiver string) (*LNURLPResponse, error) {
	u := fmt.Sprintf("%s/api/uma/lnurlp?receiver=%s", c.baseURL, url.QueryEscape(receiver))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var out LNURLPResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("lnurlp lookup for %s failed: %w", receiver, err)
	}
	if out.Callback == "" {
		return nil, fmt.Errorf("lnurlp response for %s has no callback", receiver)
	}
	return &out, nil
}

// CreatePayRequest posts to the callback from a lnurlp response and
// returns the invoice the receiver produced.
func (c *ProtocolClient) CreatePayRequest(ctx context.Context, callback string, payReq PayRequest) (*PayReqResponse, error) {
	body, err := json.Marshal(payReq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callback, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out PayReqResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("pay request to %s failed: %w", callback, err)
	}
	if out.EncodedInvoice == "" {
		return nil, fmt.Errorf("pay request response has no invoice")
	}
	return &out, nil
}

// SendPayment dispatches a fetched invoice through the sending VASP.
func (c *ProtocolClient) SendPayment(ctx context.Context, sendReq SendPaymentRequest) (*SendPaymentResponse, error) {
	body, err := json.Marshal(sendReq)
	if err != nil {
		return nil, err
	}
	u := c.baseURL + "/api/uma/send-payment"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out SendPaymentResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("send payment failed: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "payment was not accepted"
		}
		return nil, fmt.Errorf("send payment failed: %s", msg)
	}
	return &out, nil
}

func (c *ProtocolClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
