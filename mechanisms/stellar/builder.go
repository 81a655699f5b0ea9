package stellar

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/txnbuild"

	x402 "github.com/stellar-x402/x402/go"
)

// parseAsset converts a requirements asset identifier into a txnbuild asset.
// "native" selects lumens; anything else must be "CODE:ISSUER".
func parseAsset(asset string) (txnbuild.Asset, error) {
	if asset == "" || asset == AssetNative {
		return txnbuild.NativeAsset{}, nil
	}
	parts := strings.SplitN(asset, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid asset %q, want \"native\" or \"CODE:ISSUER\"", asset)
	}
	return txnbuild.CreditAsset{Code: parts[0], Issuer: parts[1]}, nil
}

// PreparePaymentTransaction builds the unsigned payment transaction that
// satisfies the given requirements, sourced and sequenced from the payer's
// on-ledger account. The result is deterministic for a fixed clock and
// account sequence: same inputs, same envelope bytes.
func PreparePaymentTransaction(ctx context.Context, payer string, req x402.PaymentRequirements, cfg *ClientConfig) (x402.PaymentPayload, error) {
	netCfg, err := GetNetworkConfig(string(req.Network))
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeNoAcceptableRequirement, err.Error(), nil)
	}

	stroops, err := strconv.ParseInt(req.MaxAmountRequired, 10, 64)
	if err != nil || stroops <= 0 {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeMalformedPayment,
			fmt.Sprintf("maxAmountRequired %q is not a positive stroop amount", req.MaxAmountRequired), nil)
	}

	asset, err := parseAsset(req.Asset)
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeMalformedPayment, err.Error(), nil)
	}

	horizon := horizonFor(cfg.Horizon, cfg.HorizonURL, cfg.HTTPClient, netCfg)
	account, err := horizon.AccountDetail(horizonclient.AccountRequest{AccountID: payer})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeAccountNotFound,
				fmt.Sprintf("payer account %s does not exist on %s", payer, req.Network), nil)
		}
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeNetwork,
			"failed to load payer account: "+err.Error(), nil)
	}

	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	now := cfg.now().Unix()

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: payer,
			Sequence:  account.Sequence,
		},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: req.PayTo,
				Amount:      amount.StringFromInt64(stroops),
				Asset:       asset,
			},
		},
		BaseFee: DefaultBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(now, now+int64(timeout)),
		},
	})
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeMalformedPayment,
			"failed to build payment transaction: "+err.Error(), nil)
	}

	txXDR, err := tx.Base64()
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.ErrCodeMalformedPayment,
			"failed to encode payment transaction: "+err.Error(), nil)
	}

	return x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     req.Network,
		Payload:     x402.TransactionEnvelope{Transaction: txXDR},
	}, nil
}
