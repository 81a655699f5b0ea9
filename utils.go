package x402

import "fmt"

// ValidatePaymentRequirements performs basic structural validation on
// payment requirements before they are handed to a mechanism.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.MaxAmountRequired == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// ValidatePaymentPayload performs basic structural validation on a payment
// payload before verification or settlement.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version != ProtocolVersion {
		return NewPaymentError(ErrCodeUnsupportedVersion, fmt.Sprintf("unsupported x402 version: %d", p.X402Version), nil)
	}
	if p.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload.Transaction == "" {
		return fmt.Errorf("payment transaction is required")
	}
	return nil
}

// findByNetworkAndScheme finds a registered implementation for a
// network/scheme combination.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, network Network, scheme string) (T, bool) {
	var zero T
	schemeMap, ok := networkMap[network]
	if !ok {
		return zero, false
	}
	impl, ok := schemeMap[scheme]
	return impl, ok
}
