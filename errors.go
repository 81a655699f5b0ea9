package x402

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error with a stable code that
// travels across the protocol boundary unchanged.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes. Verification-layer codes are terminal for the payload they
// describe; only ErrCodeNetwork is a candidate for caller-driven retry.
const (
	ErrCodeAccountNotFound             = "account_not_found"
	ErrCodeNetwork                     = "network_error"
	ErrCodeMalformedPayment            = "malformed_payment"
	ErrCodeUnsupportedVersion          = "unsupported_version"
	ErrCodeSchemeMismatch              = "scheme_mismatch"
	ErrCodeAmountOrDestinationMismatch = "amount_or_destination_mismatch"
	ErrCodePaymentExpired              = "payment_expired"
	ErrCodeInvalidSignature            = "invalid_signature"
	ErrCodeVerificationFailed          = "verification_failed"
	ErrCodeNoAcceptableRequirement     = "no_acceptable_requirement"
	ErrCodeSignerCancelled             = "signer_cancelled"
	ErrCodeUnsupportedScheme           = "unsupported_scheme"
	ErrCodeInsufficientBalance         = "insufficient_balance"
	ErrCodeBadSequence                 = "bad_sequence"
	ErrCodeSettlementFailed            = "settlement_failed"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the payment error code from err, unwrapping as needed.
// Returns the empty string if err carries no PaymentError.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRetryable reports whether err describes a transient failure the caller
// may retry. Everything except a network error is attributed to the payload
// or requirements and must not be retried with the same payload.
func IsRetryable(err error) bool {
	return ErrorCode(err) == ErrCodeNetwork
}
