package x402

import (
	"encoding/base64"
	"encoding/json"
)

// EncodePayment converts a PaymentPayload to its canonical transport
// encoding: base64 over the JSON serialization. The result is safe to place
// as a single HTTP header value and is losslessly inverted by DecodePayment.
func EncodePayment(payload PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", NewPaymentError(ErrCodeMalformedPayment, "failed to marshal payment payload: "+err.Error(), nil)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment inverts EncodePayment. It fails with a malformed_payment
// error on truncated base64 or non-JSON input, and with unsupported_version
// if the x402Version is unrecognized.
func DecodePayment(encoded string) (*PaymentPayload, error) {
	if encoded == "" {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "empty payment header", nil)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "invalid base64 encoding: "+err.Error(), nil)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "invalid payment payload JSON: "+err.Error(), nil)
	}

	if payload.X402Version != ProtocolVersion {
		return nil, NewPaymentError(ErrCodeUnsupportedVersion, "unrecognized x402 version", map[string]interface{}{
			"x402Version": payload.X402Version,
		})
	}

	return &payload, nil
}

// EncodeSettleResponse encodes a settlement receipt for the
// X-PAYMENT-RESPONSE header.
func EncodeSettleResponse(response SettleResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettleResponse decodes an X-PAYMENT-RESPONSE header value.
func DecodeSettleResponse(encoded string) (*SettleResponse, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "invalid base64 encoding: "+err.Error(), nil)
	}

	var response SettleResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "invalid settle response JSON: "+err.Error(), nil)
	}
	return &response, nil
}
