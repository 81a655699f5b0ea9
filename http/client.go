package http

import (
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/google/uuid"

	x402 "github.com/stellar-x402/x402/go"
)

// FlowState names a stage of a single payment flow. A flow covers one
// logical request: the initial attempt, at most one payment, and the final
// outcome.
type FlowState string

const (
	// FlowAwaitingResponse means the initial request is in flight.
	FlowAwaitingResponse FlowState = "awaiting_response"
	// FlowPaymentRequired means the server answered 402 and requirements
	// were selected.
	FlowPaymentRequired FlowState = "payment_required"
	// FlowPaying means a payment is being built and signed.
	FlowPaying FlowState = "paying"
	// FlowSettled means the resource was obtained, with or without payment.
	FlowSettled FlowState = "settled"
	// FlowFailed means the flow ended without the resource.
	FlowFailed FlowState = "failed"
)

// FlowEvent reports a state transition of one payment flow.
type FlowEvent struct {
	// FlowID correlates every event of one flow.
	FlowID string
	// State is the stage just entered.
	State FlowState
	// Requirements is set from FlowPaymentRequired onward.
	Requirements *x402.PaymentRequirements
	// Receipt is the decoded settlement receipt, set on FlowSettled when
	// the server attached one.
	Receipt *x402.SettleResponse
	// Err is set on FlowFailed.
	Err error
}

// RoundTripperOption configures a PaymentRoundTripper.
type RoundTripperOption func(*PaymentRoundTripper)

// WithFlowObserver registers a callback invoked on every flow state
// transition. Callbacks run synchronously on the request goroutine.
func WithFlowObserver(observer func(FlowEvent)) RoundTripperOption {
	return func(rt *PaymentRoundTripper) {
		rt.onFlow = observer
	}
}

// PaymentRoundTripper answers 402 challenges by paying them. Each request
// gets at most one payment attempt: a second 402 after payment is terminal.
type PaymentRoundTripper struct {
	base   nethttp.RoundTripper
	client *x402.X402Client
	onFlow func(FlowEvent)
}

// NewPaymentRoundTripper wraps base with payment handling driven by client.
func NewPaymentRoundTripper(base nethttp.RoundTripper, client *x402.X402Client, opts ...RoundTripperOption) *PaymentRoundTripper {
	if base == nil {
		base = nethttp.DefaultTransport
	}
	rt := &PaymentRoundTripper{base: base, client: client}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *PaymentRoundTripper) emit(event FlowEvent) {
	if rt.onFlow != nil {
		rt.onFlow(event)
	}
}

// RoundTrip sends the request, and on a 402 response builds a payment for
// the server's requirements and retries once with the X-PAYMENT header.
func (rt *PaymentRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	flowID := uuid.NewString()
	rt.emit(FlowEvent{FlowID: flowID, State: FlowAwaitingResponse})

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Err: err})
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusPaymentRequired {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowSettled})
		return resp, nil
	}

	required, err := readPaymentRequired(resp)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Err: err})
		return nil, err
	}

	selected, err := rt.client.SelectPaymentRequirements(required.Accepts)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Err: err})
		return nil, err
	}
	rt.emit(FlowEvent{FlowID: flowID, State: FlowPaymentRequired, Requirements: &selected})

	rt.emit(FlowEvent{FlowID: flowID, State: FlowPaying, Requirements: &selected})
	payload, err := rt.client.CreatePaymentPayload(req.Context(), selected)
	if err != nil {
		// Covers signer cancellation too: the flow dies here, no retry.
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Requirements: &selected, Err: err})
		return nil, err
	}

	header, err := x402.EncodePayment(payload)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Requirements: &selected, Err: err})
		return nil, err
	}

	retry, err := rewindRequest(req)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Requirements: &selected, Err: err})
		return nil, err
	}
	retry.Header.Set(x402.PaymentHeader, header)

	paidResp, err := rt.base.RoundTrip(retry)
	if err != nil {
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Requirements: &selected, Err: err})
		return nil, err
	}
	if paidResp.StatusCode == nethttp.StatusPaymentRequired {
		// The payment was rejected. One attempt per flow; surface the 402.
		rt.emit(FlowEvent{FlowID: flowID, State: FlowFailed, Requirements: &selected,
			Err: fmt.Errorf("payment rejected by server")})
		return paidResp, nil
	}

	settled := FlowEvent{FlowID: flowID, State: FlowSettled, Requirements: &selected}
	if receiptHeader := paidResp.Header.Get(x402.PaymentResponseHeader); receiptHeader != "" {
		if receipt, decodeErr := x402.DecodeSettleResponse(receiptHeader); decodeErr == nil {
			settled.Receipt = receipt
		}
	}
	rt.emit(settled)
	return paidResp, nil
}

// readPaymentRequired drains and parses a 402 response body, closing it.
func readPaymentRequired(resp *nethttp.Response) (*x402.PaymentRequired, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 body: %w", err)
	}
	var required x402.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedPayment,
			"402 response body is not a payment challenge: "+err.Error(), nil)
	}
	if required.X402Version != x402.ProtocolVersion {
		return nil, x402.NewPaymentError(x402.ErrCodeUnsupportedVersion,
			fmt.Sprintf("server speaks x402 version %d", required.X402Version), nil)
	}
	if len(required.Accepts) == 0 {
		return nil, x402.NewPaymentError(x402.ErrCodeNoAcceptableRequirement,
			"402 challenge lists no payment requirements", nil)
	}
	return &required, nil
}

// rewindRequest clones req with a replayable body for the paid retry.
func rewindRequest(req *nethttp.Request) (*nethttp.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == nethttp.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		// The body was consumed by the first attempt and cannot be rebuilt.
		return nil, fmt.Errorf("request body is not replayable, set Request.GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}
