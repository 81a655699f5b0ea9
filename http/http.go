// Package http provides the client-side HTTP integration for x402
// payments: a RoundTripper that answers 402 challenges by building, signing
// and attaching payments, and a facilitator client for servers that
// delegate verification and settlement to a remote facilitator.
package http

import (
	nethttp "net/http"

	x402 "github.com/stellar-x402/x402/go"
)

// NewHTTPClient returns an *http.Client whose transport transparently pays
// x402 challenges using the given payment client.
func NewHTTPClient(client *x402.X402Client, opts ...RoundTripperOption) *nethttp.Client {
	return &nethttp.Client{
		Transport: NewPaymentRoundTripper(nethttp.DefaultTransport, client, opts...),
	}
}

// WrapClient replaces base's transport with a paying transport. A nil base
// wraps a fresh client around http.DefaultTransport.
func WrapClient(base *nethttp.Client, client *x402.X402Client, opts ...RoundTripperOption) *nethttp.Client {
	if base == nil {
		return NewHTTPClient(client, opts...)
	}
	transport := base.Transport
	if transport == nil {
		transport = nethttp.DefaultTransport
	}
	wrapped := *base
	wrapped.Transport = NewPaymentRoundTripper(transport, client, opts...)
	return &wrapped
}
