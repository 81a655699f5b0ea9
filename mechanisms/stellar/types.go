package stellar

import (
	"context"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// ClientStellarSigner signs payment transactions on behalf of the payer.
// The core never holds the payer's private key; signing is delegated through
// this interface, which may be backed by an in-process keypair or an
// interactive wallet. Implementations must honor ctx cancellation: a
// cancelled signing attempt returns an error and leaves no partial state.
type ClientStellarSigner interface {
	// Address returns the payer's account ID (G-address).
	Address() string

	// SignTransaction signs a base64 XDR transaction envelope for the given
	// network passphrase and returns the signed envelope.
	SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error)
}

// FacilitatorStellarSigner holds the facilitator's fee-sponsor key. It only
// ever co-signs fee-bump wrappers; the payment authorization embedded in the
// payload stays the payer's.
type FacilitatorStellarSigner interface {
	// Address returns the fee-sponsor account ID.
	Address() string

	// SignFeeBump signs a fee-bump transaction for the given network
	// passphrase.
	SignFeeBump(feeBump *txnbuild.FeeBumpTransaction, networkPassphrase string) (*txnbuild.FeeBumpTransaction, error)
}

// HorizonClient is the slice of the Horizon API the mechanism depends on.
// *horizonclient.Client satisfies it; tests substitute fakes.
type HorizonClient interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitFeeBumpTransaction(transaction *txnbuild.FeeBumpTransaction) (hProtocol.Transaction, error)
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
}

// DefaultHorizonTimeout bounds every Horizon round trip. A timed-out call is
// reported as a network error and never retried by the mechanism itself.
const DefaultHorizonTimeout = 30 * time.Second

// ClientConfig holds client-side (payer) configuration.
type ClientConfig struct {
	// HorizonURL overrides the network's default Horizon endpoint.
	HorizonURL string
	// HTTPClient overrides the HTTP client used for Horizon calls.
	HTTPClient *http.Client
	// Horizon overrides the Horizon client entirely (tests).
	Horizon HorizonClient
	// Now overrides the clock used for transaction time bounds (tests).
	Now func() time.Time
}

func (c *ClientConfig) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// FacilitatorConfig holds facilitator-side configuration. The signer and
// Horizon endpoint are injected once at construction and passed explicitly
// into every call, never read from ambient global state.
type FacilitatorConfig struct {
	// Signer is the fee-sponsor key. Required for settlement.
	Signer FacilitatorStellarSigner
	// HorizonURL overrides the network's default Horizon endpoint.
	HorizonURL string
	// HTTPClient overrides the HTTP client used for Horizon calls.
	HTTPClient *http.Client
	// Horizon overrides the Horizon client entirely (tests).
	Horizon HorizonClient
	// BaseFee is the sponsored per-operation fee in stroops.
	// Defaults to FeeBumpBaseFee.
	BaseFee int64
	// Now overrides the clock used for freshness checks (tests).
	Now func() time.Time
}

func (c *FacilitatorConfig) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *FacilitatorConfig) baseFee() int64 {
	if c != nil && c.BaseFee > 0 {
		return c.BaseFee
	}
	return FeeBumpBaseFee
}

// horizonFor builds a Horizon client for the given network, honoring the
/// overrides in order: injected client, URL override, network default.
func horizonFor(injected HorizonClient, urlOverride string, httpClient *http.Client, config NetworkConfig) HorizonClient {
	if injected != nil {
		return injected
	}
	url := config.HorizonURL
	if urlOverride != "" {
		url = urlOverride
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHorizonTimeout}
	}
	return &horizonclient.Client{
		HorizonURL: url,
		HTTP:       httpClient,
	}
}
