package echo

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/stellar-x402/x402/go"
)

type fakeFacilitator struct {
	verifyResult *x402.VerifyResponse
	settleResult *x402.SettleResponse
	settleCalls  int
}

func (f *fakeFacilitator) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	return f.verifyResult, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.settleCalls++
	return f.settleResult, nil
}

func (f *fakeFacilitator) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	return x402.SupportedResponse{}, nil
}

func paidServer(facilitator *fakeFacilitator) *echo.Echo {
	e := echo.New()
	e.GET("/weather", func(c echo.Context) error {
		return c.String(http.StatusOK, "sunny")
	}, PaymentMiddleware(Config{
		Amount:      big.NewFloat(0.1),
		PayTo:       "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3",
		Facilitator: facilitator,
	}))
	return e
}

func TestEchoMiddlewareChallengesUnpaidRequest(t *testing.T) {
	e := paidServer(&fakeFacilitator{})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather", nil))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), `"accepts"`)
}

func TestEchoMiddlewareSettlesBeforeServing(t *testing.T) {
	facilitator := &fakeFacilitator{
		verifyResult: &x402.VerifyResponse{IsValid: true},
		settleResult: &x402.SettleResponse{Success: true, Transaction: "tx-hash", Network: x402.NetworkTestnet},
	}
	e := paidServer(facilitator)

	header, err := x402.EncodePayment(x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Scheme:      "exact",
		Network:     x402.NetworkTestnet,
		Payload:     x402.TransactionEnvelope{Transaction: "AAAA"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set(x402.PaymentHeader, header)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sunny", w.Body.String())
	assert.Equal(t, 1, facilitator.settleCalls)
	assert.NotEmpty(t, w.Header().Get(x402.PaymentResponseHeader))
}
