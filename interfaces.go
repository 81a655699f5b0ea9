package x402

import "context"

// SchemeNetworkClient is implemented by client-side payment mechanisms.
// CreatePaymentPayload builds, signs, and returns the complete payment
// artifact for the given requirements. Signing may block on human
// interaction; implementations must honor ctx cancellation and return
// without side effects when cancelled.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PaymentPayload, error)
}

// SchemeNetworkFacilitator is implemented by facilitator-side payment mechanisms.
//
// Verify is read-only with respect to the ledger aside from reading the
// payer's account for signature-weight checks: it never broadcasts and never
// mutates ledger state. Settle submits the payment to the ledger with the
// facilitator sponsoring the fee. Both must be safe under concurrent
// invocation for different payloads.
type SchemeNetworkFacilitator interface {
	Scheme() string
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

// FacilitatorClient is the resource server's view of a facilitator,
// whether in-process or reached over HTTP.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) (*SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}
