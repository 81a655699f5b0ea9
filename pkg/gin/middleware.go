// Package gin provides a Gin middleware that gates routes behind x402
// payments on Stellar: unpaid requests get a 402 challenge, paid requests
// are verified and settled through a facilitator before the response is
// released.
package gin

import (
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/stellar-x402/x402/go"
	x402http "github.com/stellar-x402/x402/go/http"
)

// DefaultFacilitatorURL is the facilitator endpoint used when none is
// configured.
const DefaultFacilitatorURL = "http://localhost:3001"

// stroopsPerUnit is the scale of Stellar amounts: every asset on the
// ledger carries seven decimal places.
var stroopsPerUnit = big.NewInt(10_000_000)

// PaymentMiddlewareOptions configures the payment middleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	OutputSchema      *json.RawMessage
	Facilitator       x402.FacilitatorClient
	CustomPaywallHTML string
	Resource          string
	ResourceRootURL   string
	Network           x402.Network
	Asset             string
}

// Options mutates PaymentMiddlewareOptions.
type Options func(*PaymentMiddlewareOptions)

// WithDescription sets the human-readable description in the challenge.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType sets the mime type of the paid resource.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds sets how long a payment stays valid.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithOutputSchema advertises a JSON schema describing the paid response.
// The schema must compile; a broken schema panics at route setup.
func WithOutputSchema(outputSchema *json.RawMessage) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.OutputSchema = outputSchema
	}
}

// WithFacilitator sets the facilitator client used to verify and settle.
func WithFacilitator(facilitator x402.FacilitatorClient) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Facilitator = facilitator
	}
}

// WithCustomPaywallHTML replaces the default browser paywall page.
func WithCustomPaywallHTML(customPaywallHTML string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.CustomPaywallHTML = customPaywallHTML
	}
}

// WithResource sets the advertised resource URL explicitly.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL sets the root the request path is appended to when no
// explicit resource is configured.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = resourceRootURL
	}
}

// WithNetwork selects the Stellar network payments settle on.
func WithNetwork(network x402.Network) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

// WithAsset sets the payment asset, "native" or "CODE:ISSUER".
func WithAsset(asset string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Asset = asset
	}
}

// PaymentMiddleware gates the route behind an exact-amount Stellar payment
// to address. Amount is the decimal asset amount to charge (ex: 0.1 for a
// tenth of an XLM).
func PaymentMiddleware(amount *big.Float, address string, opts ...Options) gin.HandlerFunc {
	options := &PaymentMiddlewareOptions{
		MaxTimeoutSeconds: 60,
		Network:           x402.NetworkTestnet,
		Asset:             "native",
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Facilitator == nil {
		options.Facilitator = x402http.NewFacilitatorClient(DefaultFacilitatorURL)
	}
	if options.OutputSchema != nil {
		// Compiling at setup time turns a bad schema into a startup failure
		// instead of a broken challenge on every request.
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(*options.OutputSchema)); err != nil {
			panic(fmt.Sprintf("x402: invalid output schema: %v", err))
		}
	}

	maxAmountRequired := AmountToStroops(amount)

	return func(c *gin.Context) {
		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.Path
		}

		requirements := &x402.PaymentRequirements{
			Scheme:            "exact",
			Network:           options.Network,
			MaxAmountRequired: maxAmountRequired.String(),
			Resource:          resource,
			Description:       options.Description,
			MimeType:          options.MimeType,
			PayTo:             address,
			MaxTimeoutSeconds: options.MaxTimeoutSeconds,
			Asset:             options.Asset,
			OutputSchema:      options.OutputSchema,
		}

		payload, err := x402.DecodePayment(c.GetHeader(x402.PaymentHeader))
		if err != nil {
			challenge(c, options, requirements, "payment required")
			return
		}

		verification, err := options.Facilitator.Verify(c.Request.Context(), payload, requirements)
		if err != nil {
			log.Printf("x402: verify failed for %s: %v", resource, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402.ProtocolVersion,
			})
			return
		}
		if !verification.IsValid {
			challenge(c, options, requirements, verification.InvalidReason)
			return
		}

		// Hold the handler's response until settlement lands.
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &strings.Builder{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		if c.IsAborted() {
			return
		}

		settlement, err := options.Facilitator.Settle(c.Request.Context(), payload, requirements)
		if err != nil || !settlement.Success {
			reason := "settlement failed"
			if err != nil {
				reason = err.Error()
			} else if settlement.ErrorReason != "" {
				reason = settlement.ErrorReason
			}
			log.Printf("x402: settle failed for %s: %s", resource, reason)
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
				X402Version: x402.ProtocolVersion,
				Error:       reason,
				Accepts:     []x402.PaymentRequirements{*requirements},
			})
			return
		}

		receipt, err := x402.EncodeSettleResponse(*settlement)
		if err != nil {
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402.ProtocolVersion,
			})
			return
		}

		c.Header(x402.PaymentResponseHeader, receipt)
		c.Writer = writer.ResponseWriter
		c.Writer.WriteHeader(writer.statusCode)
		c.Writer.Write([]byte(writer.body.String()))
	}
}

// challenge aborts the request with a 402, as HTML for browsers and as a
// structured challenge for everything else.
func challenge(c *gin.Context, options *PaymentMiddlewareOptions, requirements *x402.PaymentRequirements, reason string) {
	acceptHeader := c.GetHeader("Accept")
	userAgent := c.GetHeader("User-Agent")
	if strings.Contains(acceptHeader, "text/html") && strings.Contains(userAgent, "Mozilla") {
		html := options.CustomPaywallHTML
		if html == "" {
			html = paywallHTML(requirements)
		}
		c.Abort()
		c.Data(http.StatusPaymentRequired, "text/html; charset=utf-8", []byte(html))
		return
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       reason,
		Accepts:     []x402.PaymentRequirements{*requirements},
	})
}

// responseWriter buffers the handler's response so settlement can run, and
// fail, before any bytes reach the client.
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

// paywallHTML renders the default browser paywall page.
func paywallHTML(requirements *x402.PaymentRequirements) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Payment Required</title></head>
<body>
<h1>Payment Required</h1>
<p>%s</p>
<p>Pay %s stroops to <code>%s</code> on %s to access this resource.</p>
</body>
</html>`,
		requirements.Description, requirements.MaxAmountRequired, requirements.PayTo, requirements.Network)
}

// AmountToStroops converts a decimal asset amount into stroops, the
// ledger's seven-decimal integer unit.
func AmountToStroops(amount *big.Float) *big.Int {
	scale := new(big.Float).SetPrec(256).SetInt(stroopsPerUnit)
	value := new(big.Float).SetPrec(256).Set(amount)
	scaled := new(big.Float).Mul(value, scale)
	// Int truncates toward zero, so nudge by half a stroop to round
	// amounts like 0.1 that have no exact binary representation.
	scaled.Add(scaled, big.NewFloat(0.5))
	res, _ := scaled.Int(nil)
	return res
}
