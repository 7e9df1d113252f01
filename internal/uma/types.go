package uma

// Wire types for the UMA protocol endpoints. Field names follow the LNURL
// and UMA specs, hence the camelCase JSON tags.

// Convertible bounds the amounts a currency can be converted for, in the
// currency's smallest unit.
type Convertible struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Currency describes a currency the receiving VASP can settle in.
type Currency struct {
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Multiplier  int64       `json:"multiplier"` // msats per smallest unit
	Decimals    int         `json:"decimals"`
	Convertible Convertible `json:"convertible"`
}

// PayerDataOptions declares which payer identity fields the receiver
// requires or accepts.
type PayerDataOptions struct {
	Name       PayerDataOption `json:"name"`
	Email      PayerDataOption `json:"email"`
	Identifier PayerDataOption `json:"identifier"`
	Compliance PayerDataOption `json:"compliance,omitempty"`
}

type PayerDataOption struct {
	Mandatory bool `json:"mandatory"`
}

// LNURLPResponse is the receiving VASP's answer to a lnurlp lookup. The
// UMA-specific fields are only present when the lookup was UMA-signed.
type LNURLPResponse struct {
	Callback    string            `json:"callback"`
	MaxSendable int64             `json:"maxSendable"`
	MinSendable int64             `json:"minSendable"`
	Metadata    string            `json:"metadata"`
	Tag         string            `json:"tag"`
	Currencies  []Currency        `json:"currencies,omitempty"`
	PayerData   *PayerDataOptions `json:"payerData,omitempty"`
	UmaVersion  string            `json:"umaVersion,omitempty"`
	NostrPubkey string            `json:"nostrPubkey,omitempty"`
}

// PayRequest is the sender's request for an invoice at the callback URL.
type PayRequest struct {
	Amount             int64             `json:"amount"`
	CurrencyCode       string            `json:"currencyCode,omitempty"`
	PayerData          map[string]string `json:"payerData,omitempty"`
	PayerIdentifier    string            `json:"payerIdentifier,omitempty"`
	PayerKycStatus     string            `json:"payerKycStatus,omitempty"`
	ReceiverIdentifier string            `json:"receiverIdentifier,omitempty"`
}

// ConvertedAmount describes how the invoice amount maps onto the
// receiver's settlement currency.
type ConvertedAmount struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
	Decimals     int    `json:"decimals"`
	Multiplier   int64  `json:"multiplier"`
	Fee          int64  `json:"fee"` // receiver fees, msats
}

// PayReqResponse carries the invoice back to the sender.
type PayReqResponse struct {
	EncodedInvoice string           `json:"pr"`
	Routes         []interface{}    `json:"routes"`
	Converted      *ConvertedAmount `json:"converted,omitempty"`
}

// SendPaymentRequest dispatches a fetched invoice for payment.
type SendPaymentRequest struct {
	Invoice      string `json:"invoice"`
	MaxFeesMsats int64  `json:"maxFeesMsats,omitempty"`
}

// SendPaymentResponse reports the outcome of a dispatched payment.
type SendPaymentResponse struct {
	Success bool           `json:"success"`
	Payment *PaymentStatus `json:"payment,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PaymentStatus is the upstream payment record embedded in a send response.
type PaymentStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
