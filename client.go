package x402

import (
	"context"
	"fmt"
	"sync"
)

// X402Client manages payment mechanisms and creates payment payloads.
// This is used by applications that need to make payments (have wallets/signers).
type X402Client struct {
	mu sync.RWMutex

	// network -> scheme -> client implementation
	schemes map[Network]map[string]SchemeNetworkClient

	// Function to select payment requirements when multiple options exist
	requirementsSelector PaymentRequirementsSelector
}

// PaymentRequirementsSelector chooses which payment option to use from the
// options the client can fulfil. Candidates preserve the server's order.
type PaymentRequirementsSelector func(candidates []PaymentRequirements) PaymentRequirements

// ClientOption configures the client.
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithScheme registers a payment mechanism at creation time.
func WithScheme(network Network, client SchemeNetworkClient) ClientOption {
	return func(c *X402Client) {
		c.RegisterScheme(network, client)
	}
}

// Newx402Client creates a new x402 client.
func Newx402Client(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:              make(map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// defaultPaymentSelector chooses the first available payment option.
// First entry in the accepts list wins; there is no scoring.
func defaultPaymentSelector(candidates []PaymentRequirements) PaymentRequirements {
	return candidates[0]
}

// RegisterScheme registers a payment mechanism for a network.
func (c *X402Client) RegisterScheme(network Network, client SchemeNetworkClient) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[network] == nil {
		c.schemes[network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[network][client.Scheme()] = client

	return c
}

// SelectPaymentRequirements chooses which payment requirements to use,
// filtering to only those the client has a mechanism for. Fails with
// no_acceptable_requirement when the accepts list is empty or nothing in it
// is supported.
func (c *X402Client) SelectPaymentRequirements(requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var supported []PaymentRequirements
	for _, req := range requirements {
		if _, ok := findByNetworkAndScheme(c.schemes, req.Network, req.Scheme); ok {
			supported = append(supported, req)
		}
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, NewPaymentError(
			ErrCodeNoAcceptableRequirement,
			"no acceptable payment requirements available",
			map[string]interface{}{"offered": len(requirements)},
		)
	}

	return c.requirementsSelector(supported), nil
}

// CanPay checks if the client can pay with any of the given requirements.
func (c *X402Client) CanPay(requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(requirements)
	return err == nil
}

// CreatePaymentPayload creates a signed payment payload for the selected
// requirements using the registered mechanism. Any signer cancellation or
// builder failure surfaces as a typed error; no partial payload is returned.
func (c *X402Client) CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PaymentPayload, error) {
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment requirements: %w", err)
	}

	c.mu.RLock()
	client, ok := findByNetworkAndScheme(c.schemes, requirements.Network, requirements.Scheme)
	c.mu.RUnlock()
	if !ok {
		return PaymentPayload{}, NewPaymentError(
			ErrCodeUnsupportedScheme,
			fmt.Sprintf("no client registered for scheme %s on network %s", requirements.Scheme, requirements.Network),
			nil,
		)
	}

	payload, err := client.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return PaymentPayload{}, err
	}

	if err := ValidatePaymentPayload(payload); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload created: %w", err)
	}

	return payload, nil
}

// RegisteredSchemes returns the registered network/scheme pairs for debugging.
func (c *X402Client) RegisteredSchemes() []SupportedKind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var kinds []SupportedKind
	for network, schemes := range c.schemes {
		for scheme := range schemes {
			kinds = append(kinds, SupportedKind{
				X402Version: ProtocolVersion,
				Scheme:      scheme,
				Network:     network,
			})
		}
	}
	return kinds
}
