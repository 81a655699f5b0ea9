package x402

import "encoding/json"

// ProtocolVersion is the x402 protocol version this SDK speaks.
const ProtocolVersion = 1

// HTTP header names used by the protocol.
const (
	// PaymentHeader carries the encoded payment payload on a retried request.
	PaymentHeader = "X-PAYMENT"
	// PaymentResponseHeader carries the encoded settlement receipt on a paid response.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// Network identifies a Stellar network by its x402 name.
type Network string

const (
	// NetworkPublic is the Stellar public (mainnet) network.
	NetworkPublic Network = "stellar"
	// NetworkTestnet is the Stellar test network.
	NetworkTestnet Network = "stellar-testnet"
)

// PaymentRequirements defines what payment is acceptable for a resource.
// Issued by the resource server in a 402 response and immutable afterwards:
// a payload is only ever valid against the exact requirements it was built for.
type PaymentRequirements struct {
	Scheme            string           `json:"scheme"`
	Network           Network          `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             string           `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *json.RawMessage `json:"extra,omitempty"`
}

// TransactionEnvelope is the scheme payload for exact Stellar payments:
// a base64 XDR transaction envelope, unsigned when produced by the builder
// and signed once the wallet has run.
type TransactionEnvelope struct {
	Transaction string `json:"transaction"`
}

// PaymentPayload is the payment artifact a client submits in the
// X-PAYMENT header, and the unsigned precursor the builder returns.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Scheme      string              `json:"scheme"`
	Network     Network             `json:"network"`
	Payload     TransactionEnvelope `json:"payload"`
}

// PaymentRequired is the 402 response body sent to clients.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyRequest is the body of POST /verify on a facilitator.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse contains the verification result. Never mutated after creation.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest is the body of POST /settle on a facilitator.
type SettleRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse contains the settlement result. Transaction is the hash of
// the submitted ledger transaction when settlement succeeded. When the
// settle-side re-verification rejects the payment, ErrorReason is
// "verification_failed" and InvalidReason carries the underlying verdict.
type SettleResponse struct {
	Success       bool    `json:"success"`
	ErrorReason   string  `json:"errorReason,omitempty"`
	InvalidReason string  `json:"invalidReason,omitempty"`
	Transaction   string  `json:"transaction,omitempty"`
	Network       Network `json:"network"`
	Payer         string  `json:"payer,omitempty"`
}

// SupportedKind represents a single supported payment configuration.
type SupportedKind struct {
	X402Version int     `json:"x402Version"`
	Scheme      string  `json:"scheme"`
	Network     Network `json:"network"`
}

// SupportedResponse describes what payment kinds a facilitator supports.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
