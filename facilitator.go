package x402

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultSettlementCacheTTL bounds how long a settled transaction hash is
// remembered for idempotent replays.
const DefaultSettlementCacheTTL = 10 * time.Minute

// X402Facilitator manages payment verification and settlement across the
// registered scheme mechanisms. Verify and Settle are safe for concurrent
// use; settlement of the same signed transaction is de-duplicated through
// the settlement cache so the ledger sees at most one submission.
type X402Facilitator struct {
	mu sync.RWMutex

	// network -> scheme -> facilitator implementation
	schemes map[Network]map[string]SchemeNetworkFacilitator

	cache *SettlementCache

	beforeVerifyHooks []FacilitatorBeforeVerifyHook
	afterVerifyHooks  []FacilitatorAfterVerifyHook
	beforeSettleHooks []FacilitatorBeforeSettleHook
	afterSettleHooks  []FacilitatorAfterSettleHook
}

// Newx402Facilitator creates a new facilitator core.
func Newx402Facilitator() *X402Facilitator {
	return &X402Facilitator{
		schemes: make(map[Network]map[string]SchemeNetworkFacilitator),
		cache:   NewSettlementCache(DefaultSettlementCacheTTL),
	}
}

// RegisterScheme registers a facilitator mechanism for a network.
func (f *X402Facilitator) RegisterScheme(network Network, facilitator SchemeNetworkFacilitator) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schemes[network] == nil {
		f.schemes[network] = make(map[string]SchemeNetworkFacilitator)
	}
	f.schemes[network][facilitator.Scheme()] = facilitator
	return f
}

// OnBeforeVerify registers a hook that runs before every verification.
func (f *X402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

// OnAfterVerify registers a hook that runs after successful verification.
func (f *X402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

// OnBeforeSettle registers a hook that runs before every settlement.
func (f *X402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

// OnAfterSettle registers a hook that runs after settlement completes.
func (f *X402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *X402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

func (f *X402Facilitator) mechanismFor(network Network, scheme string) (SchemeNetworkFacilitator, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	impl, ok := findByNetworkAndScheme(f.schemes, network, scheme)
	if !ok {
		return nil, NewPaymentError(
			ErrCodeUnsupportedScheme,
			fmt.Sprintf("no facilitator for scheme %s on network %s", scheme, network),
			nil,
		)
	}
	return impl, nil
}

// Verify authenticates a payment payload against the requirements without
// broadcasting anything to the ledger.
func (f *X402Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	if err := ValidatePaymentPayload(payload); err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: invalidReasonFor(err)}, nil
	}

	mechanism, err := f.mechanismFor(requirements.Network, requirements.Scheme)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ErrCodeUnsupportedScheme}, nil
	}

	hookCtx := FacilitatorVerifyContext{Ctx: ctx, Payload: payload, Requirements: requirements}
	for _, hook := range f.beforeVerifyHooks {
		abort, err := hook(hookCtx)
		if err != nil {
			return &VerifyResponse{IsValid: false, InvalidReason: err.Error()}, err
		}
		if abort != nil && abort.Abort {
			return &VerifyResponse{IsValid: false, InvalidReason: abort.Reason}, nil
		}
	}

	result, err := mechanism.Verify(ctx, payload, requirements)
	if err != nil {
		return result, err
	}

	if result.IsValid {
		for _, hook := range f.afterVerifyHooks {
			_ = hook(hookCtx, *result)
		}
	}
	return result, nil
}

// Settle verifies and submits a payment to the ledger. Calls for the same
// signed transaction are de-duplicated: concurrent callers wait for the
// in-flight submission, later callers get the cached outcome.
func (f *X402Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	if err := ValidatePaymentPayload(payload); err != nil {
		return &SettleResponse{Success: false, ErrorReason: invalidReasonFor(err), Network: requirements.Network}, nil
	}

	mechanism, err := f.mechanismFor(requirements.Network, requirements.Scheme)
	if err != nil {
		return &SettleResponse{Success: false, ErrorReason: ErrCodeUnsupportedScheme, Network: requirements.Network}, nil
	}

	hookCtx := FacilitatorSettleContext{Ctx: ctx, Payload: payload, Requirements: requirements}
	for _, hook := range f.beforeSettleHooks {
		abort, err := hook(hookCtx)
		if err != nil {
			return &SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, err
		}
		if abort != nil && abort.Abort {
			return &SettleResponse{Success: false, ErrorReason: abort.Reason, Network: requirements.Network}, nil
		}
	}

	key := SettlementKey(payload)

	for {
		status, cached, done := f.cache.CheckAndMark(key)
		switch status {
		case StatusCached:
			return cached, nil

		case StatusInFlight:
			result, err := f.cache.WaitForResult(ctx, key, done)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			// The in-flight submission failed in transport without reaching
			// the ledger; take over the key and submit.
			continue

		default:
			result, err := mechanism.Settle(ctx, payload, requirements)
			if err != nil {
				// Transport-level failure: the outcome is unknown, do not
				// cache, let a caller retry.
				f.cache.Fail(key, done)
				return result, err
			}

			f.cache.Complete(key, result, done)

			for _, hook := range f.afterSettleHooks {
				_ = hook(hookCtx, *result)
			}
			return result, nil
		}
	}
}

// GetSupported returns the supported payment kinds.
func (f *X402Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var kinds []SupportedKind
	for network, schemeMap := range f.schemes {
		for scheme := range schemeMap {
			kinds = append(kinds, SupportedKind{
				X402Version: ProtocolVersion,
				Scheme:      scheme,
				Network:     network,
			})
		}
	}
	return SupportedResponse{Kinds: kinds}
}

// invalidReasonFor maps a validation error to a stable reason code.
func invalidReasonFor(err error) string {
	if code := ErrorCode(err); code != "" {
		return code
	}
	return ErrCodeMalformedPayment
}
