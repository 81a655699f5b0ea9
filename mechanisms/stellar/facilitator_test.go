package stellar

import (
	"context"
	"testing"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/stellar-x402/x402/go"
)

// paymentTx builds and signs a payment transaction matching (or deviating
// from) the test requirements.
type paymentTx struct {
	payer   *keypair.Full
	dest    string
	stroops string
	minTime int64
	maxTime int64
	signers []*keypair.Full
}

func (p paymentTx) envelope(t *testing.T) string {
	t.Helper()
	dest := p.dest
	if dest == "" {
		dest = testPayTo
	}
	amt := p.stroops
	if amt == "" {
		amt = "0.1000000"
	}
	minTime := p.minTime
	maxTime := p.maxTime
	if maxTime == 0 {
		minTime = 1_700_000_000
		maxTime = 1_700_000_120
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: p.payer.Address(),
			Sequence:  41,
		},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: dest,
				Amount:      amt,
				Asset:       txnbuild.NativeAsset{},
			},
		},
		BaseFee: txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(minTime, maxTime),
		},
	})
	require.NoError(t, err)

	signers := p.signers
	if signers == nil {
		signers = []*keypair.Full{p.payer}
	}
	for _, kp := range signers {
		tx, err = tx.Sign(network.TestNetworkPassphrase, kp)
		require.NoError(t, err)
	}

	xdr, err := tx.Base64()
	require.NoError(t, err)
	return xdr
}

func payloadFor(envelope string) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     x402.NetworkTestnet,
		Payload:     x402.TransactionEnvelope{Transaction: envelope},
	}
}

func accountFor(kp *keypair.Full) hProtocol.Account {
	return hProtocol.Account{
		AccountID: kp.Address(),
		Sequence:  41,
		Signers: []hProtocol.Signer{
			{Key: kp.Address(), Weight: 1, Type: "ed25519_public_key"},
		},
		Thresholds: hProtocol.AccountThresholds{MedThreshold: 1},
	}
}

func mustRandom(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	require.NoError(t, err)
	return kp
}

func TestVerifyValidPayment(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	result, err := facilitator.Verify(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.True(t, result.IsValid, "reason: %s", result.InvalidReason)
	assert.Equal(t, payer.Address(), result.Payer)
}

func TestVerifyAmountMismatch(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	envelope := paymentTx{payer: payer, stroops: "0.0500000"}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeAmountOrDestinationMismatch, result.InvalidReason)
}

func TestVerifyDestinationMismatch(t *testing.T) {
	payer := mustRandom(t)
	other := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	envelope := paymentTx{payer: payer, dest: other.Address()}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeAmountOrDestinationMismatch, result.InvalidReason)
}

func TestVerifyExpiredPayment(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	envelope := paymentTx{payer: payer, minTime: 1_600_000_000, maxTime: 1_600_000_060}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodePaymentExpired, result.InvalidReason)
}

func TestVerifyRejectsOverlongValidityWindow(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	// Live right now, but valid for a year against a 120-second requirement.
	envelope := paymentTx{
		payer:   payer,
		minTime: 1_700_000_000,
		maxTime: 1_700_000_000 + 365*24*3600,
	}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodePaymentExpired, result.InvalidReason)
}

func TestVerifyWrongSigner(t *testing.T) {
	payer := mustRandom(t)
	imposter := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	envelope := paymentTx{payer: payer, signers: []*keypair.Full{imposter}}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeInvalidSignature, result.InvalidReason)
}

func TestVerifyMultisigThreshold(t *testing.T) {
	payer := mustRandom(t)
	cosigner := mustRandom(t)
	account := accountFor(payer)
	account.Signers = append(account.Signers, hProtocol.Signer{
		Key: cosigner.Address(), Weight: 1, Type: "ed25519_public_key",
	})
	account.Thresholds.MedThreshold = 2
	horizon := &fakeHorizon{account: account}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	single := paymentTx{payer: payer}.envelope(t)
	result, err := facilitator.Verify(context.Background(), payloadFor(single), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid, "one signature must not reach a threshold of two")

	both := paymentTx{payer: payer, signers: []*keypair.Full{payer, cosigner}}.envelope(t)
	result, err = facilitator.Verify(context.Background(), payloadFor(both), testRequirements())
	require.NoError(t, err)
	assert.True(t, result.IsValid, "reason: %s", result.InvalidReason)
}

func TestVerifyAccountNotFound(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{accountErr: notFoundError()}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	result, err := facilitator.Verify(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeAccountNotFound, result.InvalidReason)
}

func TestVerifyMalformedEnvelope(t *testing.T) {
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: &fakeHorizon{}, Now: fixedClock()})

	result, err := facilitator.Verify(context.Background(), payloadFor("not-xdr"), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeMalformedPayment, result.InvalidReason)
}

func TestVerifySchemeMismatch(t *testing.T) {
	payer := mustRandom(t)
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: &fakeHorizon{}, Now: fixedClock()})

	payload := payloadFor(paymentTx{payer: payer}.envelope(t))
	payload.Network = x402.NetworkPublic
	result, err := facilitator.Verify(context.Background(), payload, testRequirements())
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, x402.ErrCodeSchemeMismatch, result.InvalidReason)
}

func TestVerifyHorizonUnreachable(t *testing.T) {
	payer := mustRandom(t)
	horizon := &fakeHorizon{accountErr: context.DeadlineExceeded}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{Horizon: horizon, Now: fixedClock()})

	_, err := facilitator.Verify(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeNetwork, x402.ErrorCode(err))
}

func TestSettleSubmitsFeeBump(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{
		account:    accountFor(payer),
		submitResp: hProtocol.Transaction{Hash: "feebump-hash", Successful: true},
	}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	result, err := facilitator.Settle(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.True(t, result.Success, "reason: %s", result.ErrorReason)
	assert.Equal(t, "feebump-hash", result.Transaction)
	assert.Equal(t, payer.Address(), result.Payer)

	require.Len(t, horizon.submissions, 1)
	feeBump := horizon.submissions[0]
	assert.Equal(t, sponsor.Address(), feeBump.FeeAccount())
	assert.Len(t, feeBump.Signatures(), 1, "only the sponsor signs the wrapper")
}

func TestSettleRejectsInvalidPayment(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{account: accountFor(payer)}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	envelope := paymentTx{payer: payer, stroops: "0.0000001"}.envelope(t)
	result, err := facilitator.Settle(context.Background(), payloadFor(envelope), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, x402.ErrCodeVerificationFailed, result.ErrorReason)
	assert.Equal(t, x402.ErrCodeAmountOrDestinationMismatch, result.InvalidReason)
	assert.Empty(t, horizon.submissions, "invalid payments never reach the ledger")
}

func TestSettleBadSequenceAlreadyOnLedger(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{
		account:   accountFor(payer),
		submitErr: resultCodesError("tx_fee_bump_inner_failed", "tx_bad_seq", nil),
		txDetail:  hProtocol.Transaction{Hash: "inner-hash", Successful: true},
	}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	result, err := facilitator.Settle(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.True(t, result.Success, "a consumed sequence with the transaction on ledger is a settled payment")
	assert.Equal(t, "inner-hash", result.Transaction)
}

func TestSettleBadSequenceNotOnLedger(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{
		account:   accountFor(payer),
		submitErr: resultCodesError("tx_fee_bump_inner_failed", "tx_bad_seq", nil),
		txErr:     notFoundError(),
	}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	result, err := facilitator.Settle(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, x402.ErrCodeBadSequence, result.ErrorReason)
}

func TestSettleUnderfunded(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{
		account:   accountFor(payer),
		submitErr: resultCodesError("tx_fee_bump_inner_failed", "tx_failed", []string{"op_underfunded"}),
	}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	result, err := facilitator.Settle(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, x402.ErrCodeInsufficientBalance, result.ErrorReason)
}

func TestSettleHorizonUnreachable(t *testing.T) {
	payer := mustRandom(t)
	sponsor := mustRandom(t)
	horizon := &fakeHorizon{
		account:   accountFor(payer),
		submitErr: context.DeadlineExceeded,
	}
	facilitator := NewExactStellarFacilitator(&FacilitatorConfig{
		Signer:  testSigner{kp: sponsor},
		Horizon: horizon,
		Now:     fixedClock(),
	})

	_, err := facilitator.Settle(context.Background(), payloadFor(paymentTx{payer: payer}.envelope(t)), testRequirements())
	require.Error(t, err)
	assert.Equal(t, x402.ErrCodeNetwork, x402.ErrorCode(err))
	assert.True(t, x402.IsRetryable(err))
}

// testSigner adapts a raw keypair to the facilitator signer interface
// without importing the signers package.
type testSigner struct {
	kp *keypair.Full
}

func (s testSigner) Address() string { return s.kp.Address() }

func (s testSigner) SignFeeBump(feeBump *txnbuild.FeeBumpTransaction, networkPassphrase string) (*txnbuild.FeeBumpTransaction, error) {
	return feeBump.Sign(networkPassphrase, s.kp)
}

// resultCodesError fabricates the Horizon rejection shape for a failed
// submission.
func resultCodesError(txCode, innerCode string, opCodes []string) error {
	extras := map[string]interface{}{
		"result_codes": map[string]interface{}{
			"transaction":       txCode,
			"inner_transaction": innerCode,
			"operations":        opCodes,
		},
	}
	return &horizonclient.Error{
		Problem: problem.P{
			Type:   "https://stellar.org/horizon-errors/transaction_failed",
			Title:  "Transaction Failed",
			Status: 400,
			Extras: extras,
		},
	}
}
