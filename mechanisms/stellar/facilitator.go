package stellar

import (
	"context"
	"strconv"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	x402 "github.com/stellar-x402/x402/go"
)

// ExactStellarFacilitator implements the exact payment scheme on Stellar for
// the facilitator side: it verifies signed payment envelopes against the
// requirements and the live ledger, and settles them under a fee-bump
// wrapper so the payer never spends fees.
type ExactStellarFacilitator struct {
	config FacilitatorConfig
}

// NewExactStellarFacilitator creates a facilitator-side handler for the
// exact scheme. cfg.Signer is required for settlement; verification works
// without it.
func NewExactStellarFacilitator(cfg *FacilitatorConfig) *ExactStellarFacilitator {
	f := &ExactStellarFacilitator{}
	if cfg != nil {
		f.config = *cfg
	}
	return f
}

// Scheme returns the payment scheme this facilitator implements.
func (f *ExactStellarFacilitator) Scheme() string {
	return SchemeExact
}

// decodedPayment is the result of unpacking and statically checking a
// payment envelope, before any ledger lookups.
type decodedPayment struct {
	tx     *txnbuild.Transaction
	payer  string
	netCfg NetworkConfig
}

// invalid is shorthand for a verification failure with a payer attribution
// when one is known.
func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}

// decodePayment unpacks the envelope and runs every check that needs no
// network access: structure, scheme, network, operation shape, amount,
// destination and asset.
func (f *ExactStellarFacilitator) decodePayment(payload x402.PaymentPayload, req x402.PaymentRequirements) (*decodedPayment, *x402.VerifyResponse) {
	if payload.Scheme != SchemeExact || payload.Scheme != req.Scheme {
		return nil, invalid(x402.ErrCodeSchemeMismatch, "")
	}
	if payload.Network != req.Network {
		return nil, invalid(x402.ErrCodeSchemeMismatch, "")
	}
	netCfg, err := GetNetworkConfig(string(payload.Network))
	if err != nil {
		return nil, invalid(x402.ErrCodeSchemeMismatch, "")
	}

	generic, err := txnbuild.TransactionFromXDR(payload.Payload.Transaction)
	if err != nil {
		return nil, invalid(x402.ErrCodeMalformedPayment, "")
	}
	tx, ok := generic.Transaction()
	if !ok {
		// Fee bumps are applied by the facilitator, never submitted by payers.
		return nil, invalid(x402.ErrCodeMalformedPayment, "")
	}
	payer := tx.SourceAccount().AccountID

	ops := tx.Operations()
	if len(ops) != 1 {
		return nil, invalid(x402.ErrCodeMalformedPayment, payer)
	}
	payment, ok := ops[0].(*txnbuild.Payment)
	if !ok {
		return nil, invalid(x402.ErrCodeMalformedPayment, payer)
	}

	requiredStroops, err := strconv.ParseInt(req.MaxAmountRequired, 10, 64)
	if err != nil || requiredStroops <= 0 {
		return nil, invalid(x402.ErrCodeAmountOrDestinationMismatch, payer)
	}
	paidStroops, err := amount.ParseInt64(payment.Amount)
	if err != nil || paidStroops != requiredStroops {
		return nil, invalid(x402.ErrCodeAmountOrDestinationMismatch, payer)
	}
	if payment.Destination != req.PayTo {
		return nil, invalid(x402.ErrCodeAmountOrDestinationMismatch, payer)
	}

	wantAsset, err := parseAsset(req.Asset)
	if err != nil || !sameAsset(payment.Asset, wantAsset) {
		return nil, invalid(x402.ErrCodeAmountOrDestinationMismatch, payer)
	}

	return &decodedPayment{tx: tx, payer: payer, netCfg: netCfg}, nil
}

func sameAsset(got, want txnbuild.Asset) bool {
	if got == nil || want == nil {
		return false
	}
	if got.IsNative() || want.IsNative() {
		return got.IsNative() && want.IsNative()
	}
	return got.GetCode() == want.GetCode() && got.GetIssuer() == want.GetIssuer()
}

// Verify checks a payment envelope against the requirements and the live
// ledger. Protocol-level rejections come back as IsValid=false with a
// reason; only transport failures return an error.
func (f *ExactStellarFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	decoded, rejection := f.decodePayment(payload, req)
	if rejection != nil {
		return rejection, nil
	}

	tb := decoded.tx.Timebounds()
	if tb.MaxTime <= 0 {
		return invalid(x402.ErrCodeMalformedPayment, decoded.payer), nil
	}
	now := f.config.now().Unix()
	if now >= tb.MaxTime {
		return invalid(x402.ErrCodePaymentExpired, decoded.payer), nil
	}
	if tb.MinTime > 0 && now < tb.MinTime {
		return invalid(x402.ErrCodePaymentExpired, decoded.payer), nil
	}
	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	// The expiry must sit inside the requirement's freshness window; a
	// longer-lived envelope was not built against these requirements.
	if tb.MaxTime-now > int64(timeout) {
		return invalid(x402.ErrCodePaymentExpired, decoded.payer), nil
	}

	hz := horizonFor(f.config.Horizon, f.config.HorizonURL, f.config.HTTPClient, decoded.netCfg)
	account, err := hz.AccountDetail(horizonclient.AccountRequest{AccountID: decoded.payer})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return invalid(x402.ErrCodeAccountNotFound, decoded.payer), nil
		}
		return nil, x402.NewPaymentError(x402.ErrCodeNetwork, "failed to load payer account: "+err.Error(), nil)
	}

	if ok, err := signaturesMeetThreshold(decoded.tx, decoded.netCfg.Passphrase, account); err != nil || !ok {
		return invalid(x402.ErrCodeInvalidSignature, decoded.payer), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: decoded.payer}, nil
}

// signaturesMeetThreshold verifies the envelope's signatures against the
// account's on-ledger signer set and reports whether their combined weight
// reaches the account's medium threshold.
func signaturesMeetThreshold(tx *txnbuild.Transaction, passphrase string, account horizon.Account) (bool, error) {
	hash, err := tx.Hash(passphrase)
	if err != nil {
		return false, err
	}

	required := int32(account.Thresholds.MedThreshold)
	if required < 1 {
		required = 1
	}

	var weight int32
	counted := make(map[string]bool)
	for _, sig := range tx.Signatures() {
		for _, signer := range account.Signers {
			if counted[signer.Key] {
				continue
			}
			kp, err := keypair.ParseAddress(signer.Key)
			if err != nil {
				continue
			}
			if kp.Hint() != [4]byte(sig.Hint) {
				continue
			}
			if kp.Verify(hash[:], sig.Signature) != nil {
				continue
			}
			counted[signer.Key] = true
			weight += signer.Weight
			break
		}
	}
	return weight >= required, nil
}

// Settle verifies the payment once more, wraps it in a facilitator-funded
// fee bump and submits it. A payment whose inner transaction is already on
// ledger settles successfully without resubmission.
func (f *ExactStellarFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error) {
	verification, err := f.Verify(ctx, payload, req)
	if err != nil {
		return nil, err
	}
	if !verification.IsValid {
		return &x402.SettleResponse{
			Success:       false,
			ErrorReason:   x402.ErrCodeVerificationFailed,
			InvalidReason: verification.InvalidReason,
			Network:       payload.Network,
			Payer:         verification.Payer,
		}, nil
	}
	if f.config.Signer == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementFailed, "facilitator has no fee-sponsor signer configured", nil)
	}

	decoded, rejection := f.decodePayment(payload, req)
	if rejection != nil {
		// Unreachable after a valid Verify, but fail closed.
		return &x402.SettleResponse{
			Success:       false,
			ErrorReason:   x402.ErrCodeVerificationFailed,
			InvalidReason: rejection.InvalidReason,
			Network:       payload.Network,
		}, nil
	}

	innerHash, err := decoded.tx.HashHex(decoded.netCfg.Passphrase)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementFailed, "failed to hash payment transaction: "+err.Error(), nil)
	}

	feeBump, err := txnbuild.NewFeeBumpTransaction(txnbuild.FeeBumpTransactionParams{
		Inner:      decoded.tx,
		FeeAccount: f.config.Signer.Address(),
		BaseFee:    f.config.baseFee(),
	})
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementFailed, "failed to build fee bump: "+err.Error(), nil)
	}
	feeBump, err = f.config.Signer.SignFeeBump(feeBump, decoded.netCfg.Passphrase)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSettlementFailed, "failed to sign fee bump: "+err.Error(), nil)
	}

	hz := horizonFor(f.config.Horizon, f.config.HorizonURL, f.config.HTTPClient, decoded.netCfg)
	resp, err := hz.SubmitFeeBumpTransaction(feeBump)
	if err != nil {
		reason, badSeq, transportErr := classifyHorizonError(err)
		if transportErr != nil {
			return nil, transportErr
		}
		if badSeq {
			// A consumed sequence number usually means this exact payment
			// already landed, submitted by a concurrent settle. Check before
			// declaring failure.
			if ledgerTx, lookupErr := hz.TransactionDetail(innerHash); lookupErr == nil && ledgerTx.Successful {
				return &x402.SettleResponse{
					Success:     true,
					Transaction: ledgerTx.Hash,
					Network:     payload.Network,
					Payer:       decoded.payer,
				}, nil
			}
		}
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Network:     payload.Network,
			Payer:       decoded.payer,
		}, nil
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: resp.Hash,
		Network:     payload.Network,
		Payer:       decoded.payer,
	}, nil
}
