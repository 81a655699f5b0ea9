// Package stellar provides signer implementations for the Stellar payment
// mechanism: an in-process keypair signer for servers and tests, and a
// callback signer that defers to an external wallet.
package stellar

import (
	"context"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// KeypairSigner signs transactions with an in-memory ed25519 keypair. It
// serves both the client and facilitator signer roles.
type KeypairSigner struct {
	kp *keypair.Full
}

// NewKeypairSigner creates a signer from a Stellar secret seed ("S...").
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid stellar secret seed: %w", err)
	}
	return &KeypairSigner{kp: kp}, nil
}

// NewRandomSigner creates a signer with a freshly generated keypair. The
// account must still be created on-ledger before it can pay.
func NewRandomSigner() (*KeypairSigner, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, err
	}
	return &KeypairSigner{kp: kp}, nil
}

// Address returns the signer's public account ID ("G...").
func (s *KeypairSigner) Address() string {
	return s.kp.Address()
}

// SignTransaction decodes the envelope, signs it for the given network and
// returns the signed envelope.
func (s *KeypairSigner) SignTransaction(ctx context.Context, txXDR, networkPassphrase string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	generic, err := txnbuild.TransactionFromXDR(txXDR)
	if err != nil {
		return "", fmt.Errorf("failed to decode transaction: %w", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return "", fmt.Errorf("expected a simple transaction envelope")
	}
	signed, err := tx.Sign(networkPassphrase, s.kp)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed.Base64()
}

// SignFeeBump signs a fee-bump wrapper with the sponsor key.
func (s *KeypairSigner) SignFeeBump(feeBump *txnbuild.FeeBumpTransaction, networkPassphrase string) (*txnbuild.FeeBumpTransaction, error) {
	return feeBump.Sign(networkPassphrase, s.kp)
}

// SignFunc produces a signed envelope for the given unsigned envelope and
// network passphrase, typically by prompting an external wallet.
type SignFunc func(txXDR, networkPassphrase string) (string, error)

// CallbackSigner delegates signing to a caller-supplied function, such as a
// wallet prompt. The signing call runs in its own goroutine so the context
// can cancel the wait; an abandoned callback finishes in the background and
// its result is discarded.
type CallbackSigner struct {
	address string
	sign    SignFunc
}

// NewCallbackSigner creates a signer for the given account address whose
// signatures come from sign.
func NewCallbackSigner(address string, sign SignFunc) *CallbackSigner {
	return &CallbackSigner{address: address, sign: sign}
}

// Address returns the account the callback signs for.
func (s *CallbackSigner) Address() string {
	return s.address
}

// SignTransaction invokes the callback, honoring context cancellation while
// it runs.
func (s *CallbackSigner) SignTransaction(ctx context.Context, txXDR, networkPassphrase string) (string, error) {
	type signResult struct {
		xdr string
		err error
	}
	done := make(chan signResult, 1)
	go func() {
		signed, err := s.sign(txXDR, networkPassphrase)
		done <- signResult{xdr: signed, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.xdr, res.err
	}
}
