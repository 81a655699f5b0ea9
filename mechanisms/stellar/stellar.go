// Package stellar implements the "exact" payment scheme on the Stellar
// ledger for both sides of the protocol: the client half builds and signs
// classic payment transactions against the payer's live sequence number,
// and the facilitator half verifies signed envelopes against requirements
// and the ledger, then settles them under a facilitator-funded fee bump so
// payers never hold lumens for fees.
//
// Amounts in payment requirements are denominated in stroops, the ledger's
// integer minor unit (1 XLM = 10,000,000 stroops). Assets are either
// "native" or "CODE:ISSUER".
package stellar

import (
	x402 "github.com/stellar-x402/x402/go"
)

// RegisterExactClient registers the exact Stellar scheme on both supported
// networks of the given client.
func RegisterExactClient(c *x402.X402Client, signer ClientStellarSigner, cfg *ClientConfig) *x402.X402Client {
	handler := NewExactStellarClient(signer, cfg)
	c.RegisterScheme(x402.NetworkPublic, handler)
	c.RegisterScheme(x402.NetworkTestnet, handler)
	return c
}

// RegisterExactFacilitator registers the exact Stellar scheme on both
// supported networks of the given facilitator.
func RegisterExactFacilitator(f *x402.X402Facilitator, cfg *FacilitatorConfig) *x402.X402Facilitator {
	handler := NewExactStellarFacilitator(cfg)
	f.RegisterScheme(x402.NetworkPublic, handler)
	f.RegisterScheme(x402.NetworkTestnet, handler)
	return f
}
