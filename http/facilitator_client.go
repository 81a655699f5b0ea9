package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	x402 "github.com/stellar-x402/x402/go"
)

// DefaultFacilitatorTimeout bounds facilitator calls when the caller
// supplies no HTTP client of its own.
const DefaultFacilitatorTimeout = 30 * time.Second

// AuthProvider supplies authentication headers for facilitator requests.
type AuthProvider interface {
	// Headers returns the headers to attach to a request for the given
	// facilitator endpoint ("verify", "settle" or "supported").
	Headers(ctx context.Context, endpoint string) (map[string]string, error)
}

// FacilitatorClientOption configures an HTTPFacilitatorClient.
type FacilitatorClientOption func(*HTTPFacilitatorClient)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *nethttp.Client) FacilitatorClientOption {
	return func(c *HTTPFacilitatorClient) {
		c.httpClient = client
	}
}

// WithAuthProvider attaches authentication headers to every request.
func WithAuthProvider(provider AuthProvider) FacilitatorClientOption {
	return func(c *HTTPFacilitatorClient) {
		c.auth = provider
	}
}

// HTTPFacilitatorClient talks to a remote facilitator over its HTTP API:
// POST /verify, POST /settle and GET /supported. Facilitators report
// protocol outcomes in the response body with HTTP 200; a non-200 status is
// a transport failure.
type HTTPFacilitatorClient struct {
	baseURL    string
	httpClient *nethttp.Client
	auth       AuthProvider
}

// NewFacilitatorClient creates a client for the facilitator at baseURL.
func NewFacilitatorClient(baseURL string, opts ...FacilitatorClientOption) *HTTPFacilitatorClient {
	c := &HTTPFacilitatorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &nethttp.Client{Timeout: DefaultFacilitatorTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// facilitatorRequest is the wire shape of verify and settle requests.
type facilitatorRequest struct {
	X402Version         int                       `json:"x402Version"`
	PaymentPayload      *x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *x402.PaymentRequirements `json:"paymentRequirements"`
}

func (c *HTTPFacilitatorClient) post(ctx context.Context, endpoint string, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         x402.ProtocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, endpoint, req, out)
}

func (c *HTTPFacilitatorClient) do(ctx context.Context, endpoint string, req *nethttp.Request, out any) error {
	if c.auth != nil {
		headers, err := c.auth.Headers(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("auth provider failed for %s: %w", endpoint, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return x402.NewPaymentError(x402.ErrCodeNetwork, "facilitator unreachable: "+err.Error(), nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return x402.NewPaymentError(x402.ErrCodeNetwork, "failed to read facilitator response: "+err.Error(), nil)
	}
	if resp.StatusCode != nethttp.StatusOK {
		return x402.NewPaymentError(x402.ErrCodeNetwork,
			fmt.Sprintf("facilitator %s returned HTTP %d: %s", endpoint, resp.StatusCode, string(raw)), nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return x402.NewPaymentError(x402.ErrCodeNetwork, "malformed facilitator response: "+err.Error(), nil)
	}
	return nil
}

// Verify asks the facilitator to verify a payment against requirements.
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	var out x402.VerifyResponse
	if err := c.post(ctx, "verify", payload, requirements, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle asks the facilitator to settle a verified payment on ledger.
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, payload *x402.PaymentPayload, requirements *x402.PaymentRequirements) (*x402.SettleResponse, error) {
	var out x402.SettleResponse
	if err := c.post(ctx, "settle", payload, requirements, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSupported lists the scheme and network pairs the facilitator serves.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return x402.SupportedResponse{}, err
	}
	var out x402.SupportedResponse
	if err := c.do(ctx, "supported", req, &out); err != nil {
		return x402.SupportedResponse{}, err
	}
	return out, nil
}

var _ x402.FacilitatorClient = (*HTTPFacilitatorClient)(nil)
