package stellar

import (
	"fmt"

	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
)

// SchemeExact is the scheme identifier for exact-amount Stellar payments.
const SchemeExact = "exact"

// Network identifiers used in x402 requirements and payloads.
const (
	NetworkPublic  = "stellar"
	NetworkTestnet = "stellar-testnet"
)

// AssetNative identifies the native asset (XLM, denominated in stroops).
const AssetNative = "native"

// DefaultBaseFee is the per-operation fee offered for payment transactions,
// in stroops.
const DefaultBaseFee = txnbuild.MinBaseFee

// FeeBumpBaseFee is the per-operation fee the facilitator sponsors when
// wrapping a payment for submission. Higher than the inner fee so the wrap
// is always acceptable to the network.
const FeeBumpBaseFee = 2 * txnbuild.MinBaseFee

// DefaultMaxTimeoutSeconds bounds a payment's validity window when the
// requirements do not specify one.
const DefaultMaxTimeoutSeconds = 300

// NetworkConfig describes one Stellar network.
type NetworkConfig struct {
	// Passphrase is the network passphrase transactions are hashed against.
	Passphrase string
	// HorizonURL is the default Horizon endpoint for the network.
	HorizonURL string
}

var networkConfigs = map[string]NetworkConfig{
	NetworkPublic: {
		Passphrase: network.PublicNetworkPassphrase,
		HorizonURL: "https://horizon.stellar.org",
	},
	NetworkTestnet: {
		Passphrase: network.TestNetworkPassphrase,
		HorizonURL: "https://horizon-testnet.stellar.org",
	},
}

// GetNetworkConfig returns the configuration for an x402 network name.
func GetNetworkConfig(name string) (NetworkConfig, error) {
	config, ok := networkConfigs[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", name)
	}
	return config, nil
}

// IsValidNetwork reports whether name is a supported Stellar network.
func IsValidNetwork(name string) bool {
	_, ok := networkConfigs[name]
	return ok
}
