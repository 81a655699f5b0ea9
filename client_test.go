package x402

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchemeClient struct {
	scheme  string
	payload PaymentPayload
	err     error
}

func (f *fakeSchemeClient) Scheme() string { return f.scheme }

func (f *fakeSchemeClient) CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PaymentPayload, error) {
	if f.err != nil {
		return PaymentPayload{}, f.err
	}
	return f.payload, nil
}

func testRequirements(network Network) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           network,
		MaxAmountRequired: "1000000",
		Resource:          "https://example.com/resource",
		PayTo:             "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3",
		MaxTimeoutSeconds: 60,
		Asset:             "native",
	}
}

func TestSelectPaymentRequirementsFirstSupportedWins(t *testing.T) {
	client := Newx402Client(
		WithScheme(NetworkTestnet, &fakeSchemeClient{scheme: "exact"}),
	)

	public := testRequirements(NetworkPublic)
	testnet := testRequirements(NetworkTestnet)

	// The public entry comes first but no mechanism serves it.
	selected, err := client.SelectPaymentRequirements([]PaymentRequirements{public, testnet})
	require.NoError(t, err)
	assert.Equal(t, NetworkTestnet, selected.Network)
}

func TestSelectPaymentRequirementsPrefersFirstEntry(t *testing.T) {
	client := Newx402Client(
		WithScheme(NetworkTestnet, &fakeSchemeClient{scheme: "exact"}),
		WithScheme(NetworkPublic, &fakeSchemeClient{scheme: "exact"}),
	)

	public := testRequirements(NetworkPublic)
	testnet := testRequirements(NetworkTestnet)

	selected, err := client.SelectPaymentRequirements([]PaymentRequirements{public, testnet})
	require.NoError(t, err)
	assert.Equal(t, NetworkPublic, selected.Network, "server preference order decides among supported entries")
}

func TestSelectPaymentRequirementsNoneSupported(t *testing.T) {
	client := Newx402Client()

	_, err := client.SelectPaymentRequirements([]PaymentRequirements{testRequirements(NetworkTestnet)})
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoAcceptableRequirement, ErrorCode(err))
}

func TestCreatePaymentPayloadRoutesByNetworkAndScheme(t *testing.T) {
	want := PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      "exact",
		Network:     NetworkTestnet,
		Payload:     TransactionEnvelope{Transaction: "AAAA"},
	}
	client := Newx402Client(
		WithScheme(NetworkTestnet, &fakeSchemeClient{scheme: "exact", payload: want}),
	)

	got, err := client.CreatePaymentPayload(context.Background(), testRequirements(NetworkTestnet))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCreatePaymentPayloadUnknownScheme(t *testing.T) {
	client := Newx402Client()

	_, err := client.CreatePaymentPayload(context.Background(), testRequirements(NetworkTestnet))
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnsupportedScheme, ErrorCode(err))
}

func TestCanPay(t *testing.T) {
	client := Newx402Client(
		WithScheme(NetworkTestnet, &fakeSchemeClient{scheme: "exact"}),
	)

	assert.True(t, client.CanPay([]PaymentRequirements{testRequirements(NetworkTestnet)}))
	assert.False(t, client.CanPay([]PaymentRequirements{testRequirements(NetworkPublic)}))
	assert.False(t, client.CanPay(nil))
}
