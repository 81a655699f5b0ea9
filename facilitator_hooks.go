package x402

import "context"

// Lifecycle hooks let integrators observe and short-circuit facilitator
// operations (rate limiting, allowlists, audit logging) without touching the
// mechanism itself.

// FacilitatorVerifyContext is passed to verify hooks.
type FacilitatorVerifyContext struct {
	Ctx          context.Context
	Payload      PaymentPayload
	Requirements PaymentRequirements
}

// FacilitatorSettleContext is passed to settle hooks.
type FacilitatorSettleContext struct {
	Ctx          context.Context
	Payload      PaymentPayload
	Requirements PaymentRequirements
}

// HookAbort aborts the operation with the given reason when returned from a
// before hook.
type HookAbort struct {
	Abort  bool
	Reason string
}

// FacilitatorBeforeVerifyHook runs before verification. Returning a non-nil
// HookAbort with Abort set rejects the payment without calling the mechanism.
type FacilitatorBeforeVerifyHook func(ctx FacilitatorVerifyContext) (*HookAbort, error)

// FacilitatorAfterVerifyHook runs after a successful verification. Errors are
// ignored; the verification result is already final.
type FacilitatorAfterVerifyHook func(ctx FacilitatorVerifyContext, result VerifyResponse) error

// FacilitatorBeforeSettleHook runs before settlement.
type FacilitatorBeforeSettleHook func(ctx FacilitatorSettleContext) (*HookAbort, error)

// FacilitatorAfterSettleHook runs after settlement completes, successful or not.
type FacilitatorAfterSettleHook func(ctx FacilitatorSettleContext, result SettleResponse) error
