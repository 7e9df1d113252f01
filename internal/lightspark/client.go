package lightspark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a minimal Lightspark API client covering the two calls the UMA
// routes need: creating a UMA invoice and paying one.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

// Invoice is a created UMA invoice.
type Invoice struct {
	ID                    string `json:"id"`
	EncodedPaymentRequest string `json:"encoded_payment_request"`
}

// Payment is an outgoing payment as reported by Lightspark.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewClient builds a Lightspark client authenticated with account token credentials
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("lightspark credentials not configured")
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to lightspark: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("lightspark returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding lightspark response: %v", err)
	}
	return nil
}

// CreateUmaInvoice creates an invoice for the given amount against the configured node
func (c *Client) CreateUmaInvoice(ctx context.Context, nodeID string, amountMsats int64, metadata string) (*Invoice, error) {
	body := map[string]interface{}{
		"node_id":      nodeID,
		"amount_msats": amountMsats,
		"metadata":     metadata,
	}

	var out Invoice
	if err := c.post(ctx, "/uma/invoices", body, &out); err != nil {
		return nil, err
	}
	if out.EncodedPaymentRequest == "" {
		return nil, fmt.Errorf("lightspark returned invoice without payment request")
	}
	return &out, nil
}

// PayUmaInvoice dispatches payment of an encoded invoice from the configured node
func (c *Client) PayUmaInvoice(ctx context.Context, nodeID, invoice string, maxFeesMsats int64) (*Payment, error) {
	body := map[string]interface{}{
		"node_id":         nodeID,
		"encoded_invoice": invoice,
		"max_fees_msats":  maxFeesMsats,
	}

	var out Payment
	if err := c.post(ctx, "/uma/payments", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("lightspark returned payment without id")
	}
	return &out, nil
}
