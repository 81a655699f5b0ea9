package stellar

import (
	"context"

	x402 "github.com/stellar-x402/x402/go"
)

// ExactStellarClient implements the exact payment scheme on Stellar for the
// paying side. It builds a payment transaction against the payer's live
// account sequence and hands it to the signer.
type ExactStellarClient struct {
	signer ClientStellarSigner
	config ClientConfig
}

// NewExactStellarClient creates a client-side handler for the exact scheme.
// cfg may be nil for network defaults.
func NewExactStellarClient(signer ClientStellarSigner, cfg *ClientConfig) *ExactStellarClient {
	c := &ExactStellarClient{signer: signer}
	if cfg != nil {
		c.config = *cfg
	}
	return c
}

// Scheme returns the payment scheme this client implements.
func (c *ExactStellarClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and signs a payment satisfying the given
// requirements. The returned payload carries the fully signed transaction
// envelope, ready for the facilitator to sponsor and submit.
func (c *ExactStellarClient) CreatePaymentPayload(ctx context.Context, req x402.PaymentRequirements) (x402.PaymentPayload, error) {
	if c.signer == nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeVerificationFailed, "no signer configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeSignerCancelled, "payment cancelled before signing", nil)
	}

	payload, err := PreparePaymentTransaction(ctx, c.signer.Address(), req, &c.config)
	if err != nil {
		return x402.PaymentPayload{}, err
	}

	netCfg, err := GetNetworkConfig(string(req.Network))
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeNoAcceptableRequirement, err.Error(), nil)
	}

	signedXDR, err := c.signer.SignTransaction(ctx, payload.Payload.Transaction, netCfg.Passphrase)
	if err != nil {
		if isSigningCancelled(err) {
			return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeSignerCancelled, "signing cancelled: "+err.Error(), nil)
		}
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeInvalidSignature, "signing failed: "+err.Error(), nil)
	}

	payload.Payload.Transaction = signedXDR
	return payload, nil
}
