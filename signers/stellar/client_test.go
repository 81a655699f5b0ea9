package stellar

import (
	"context"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsignedEnvelope(t *testing.T, source string) string {
	t.Helper()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source, Sequence: 1},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: source,
				Amount:      "1.0000000",
				Asset:       txnbuild.NativeAsset{},
			},
		},
		BaseFee: txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewInfiniteTimeout(),
		},
	})
	require.NoError(t, err)
	xdr, err := tx.Base64()
	require.NoError(t, err)
	return xdr
}

func TestKeypairSignerRoundTrip(t *testing.T) {
	signer, err := NewRandomSigner()
	require.NoError(t, err)

	signedXDR, err := signer.SignTransaction(context.Background(), unsignedEnvelope(t, signer.Address()), network.TestNetworkPassphrase)
	require.NoError(t, err)

	generic, err := txnbuild.TransactionFromXDR(signedXDR)
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)
	require.Len(t, tx.Signatures(), 1)

	kp, err := keypair.ParseAddress(signer.Address())
	require.NoError(t, err)
	hash, err := tx.Hash(network.TestNetworkPassphrase)
	require.NoError(t, err)
	assert.NoError(t, kp.Verify(hash[:], tx.Signatures()[0].Signature))
}

func TestNewKeypairSignerRejectsBadSeed(t *testing.T) {
	_, err := NewKeypairSigner("not-a-seed")
	assert.Error(t, err)
}

func TestKeypairSignerRejectsGarbage(t *testing.T) {
	signer, err := NewRandomSigner()
	require.NoError(t, err)

	_, err = signer.SignTransaction(context.Background(), "garbage", network.TestNetworkPassphrase)
	assert.Error(t, err)
}

func TestCallbackSignerDelegates(t *testing.T) {
	signer := NewCallbackSigner("GADDRESS", func(txXDR, passphrase string) (string, error) {
		return txXDR + "-signed", nil
	})

	signed, err := signer.SignTransaction(context.Background(), "envelope", network.TestNetworkPassphrase)
	require.NoError(t, err)
	assert.Equal(t, "envelope-signed", signed)
	assert.Equal(t, "GADDRESS", signer.Address())
}

func TestCallbackSignerHonorsCancellation(t *testing.T) {
	blocked := make(chan struct{})
	signer := NewCallbackSigner("GADDRESS", func(txXDR, passphrase string) (string, error) {
		<-blocked
		return "", nil
	})
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := signer.SignTransaction(ctx, "envelope", network.TestNetworkPassphrase)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
