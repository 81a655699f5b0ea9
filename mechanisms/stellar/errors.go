package stellar

import (
	"context"
	"errors"

	"github.com/stellar/go/clients/horizonclient"

	x402 "github.com/stellar-x402/x402/go"
)

// ErrSigningCancelled is returned by signers when the user rejects or
// abandons a signing request.
var ErrSigningCancelled = errors.New("stellar: signing cancelled")

// isSigningCancelled reports whether err represents a cancelled or rejected
// signing attempt, either by the signer or through context cancellation.
func isSigningCancelled(err error) bool {
	return errors.Is(err, ErrSigningCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classifyHorizonError splits a Horizon failure into a ledger-level
// rejection reason or a transport failure. A rejection returns
// (reason, innerBadSeq, nil); a transport failure returns ("", false, err)
// with the original error so callers can decide whether to retry.
func classifyHorizonError(err error) (reason string, badSeq bool, transport error) {
	var hzErr *horizonclient.Error
	if !errors.As(err, &hzErr) {
		var hzVal horizonclient.Error
		if !errors.As(err, &hzVal) {
			return "", false, x402.NewPaymentError(x402.ErrCodeNetwork, "horizon unreachable: "+err.Error(), nil)
		}
		hzErr = &hzVal
	}

	codes, codesErr := hzErr.ResultCodes()
	if codesErr != nil {
		// Horizon answered but without transaction result codes: an HTTP
		// level rejection (rate limit, gateway error). Treat as transport.
		return "", false, x402.NewPaymentError(x402.ErrCodeNetwork, "horizon error without result codes: "+err.Error(), nil)
	}

	txCode := codes.TransactionCode
	if codes.InnerTransactionCode != "" {
		// Fee-bump wrapper: the inner code describes the payment itself.
		txCode = codes.InnerTransactionCode
	}

	switch txCode {
	case "tx_bad_seq":
		return x402.ErrCodeBadSequence, true, nil
	case "tx_too_late", "tx_too_early":
		return x402.ErrCodePaymentExpired, false, nil
	case "tx_bad_auth", "tx_bad_auth_extra":
		return x402.ErrCodeInvalidSignature, false, nil
	case "tx_insufficient_balance":
		return x402.ErrCodeInsufficientBalance, false, nil
	case "tx_failed":
		for _, op := range codes.OperationCodes {
			if op == "op_underfunded" {
				return x402.ErrCodeInsufficientBalance, false, nil
			}
		}
	}

	// Anything else is surfaced verbatim; it is fatal for this transaction.
	if txCode == "" {
		txCode = x402.ErrCodeSettlementFailed
	}
	return txCode, false, nil
}
