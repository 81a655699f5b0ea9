// Package echo provides an Echo middleware that gates routes behind x402
// payments on Stellar. Unlike the Gin variant, which buffers the handler's
// response and settles afterward, this middleware settles before invoking
// the handler: a route whose work is expensive to produce but cheap to
// discard should prefer the Gin ordering.
package echo

import (
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/stellar-x402/x402/go"
	x402http "github.com/stellar-x402/x402/go/http"
	x402gin "github.com/stellar-x402/x402/go/pkg/gin"
)

// Config configures the payment middleware.
type Config struct {
	// Amount is the decimal asset amount to charge.
	Amount *big.Float
	// PayTo is the receiving Stellar account.
	PayTo string
	// Facilitator verifies and settles payments. Defaults to the local
	// facilitator endpoint.
	Facilitator x402.FacilitatorClient
	// Network defaults to the Stellar testnet.
	Network x402.Network
	// Asset is "native" or "CODE:ISSUER". Defaults to native.
	Asset string
	// MaxTimeoutSeconds defaults to 60.
	MaxTimeoutSeconds int
	Description       string
	MimeType          string
	OutputSchema      *json.RawMessage
	CustomPaywallHTML string
	ResourceRootURL   string
}

// PaymentMiddleware returns an Echo middleware enforcing payment per the
// config.
func PaymentMiddleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Network == "" {
		cfg.Network = x402.NetworkTestnet
	}
	if cfg.Asset == "" {
		cfg.Asset = "native"
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = 60
	}
	if cfg.Facilitator == nil {
		cfg.Facilitator = x402http.NewFacilitatorClient(x402gin.DefaultFacilitatorURL)
	}
	if cfg.OutputSchema != nil {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(*cfg.OutputSchema)); err != nil {
			panic(fmt.Sprintf("x402: invalid output schema: %v", err))
		}
	}
	maxAmountRequired := x402gin.AmountToStroops(cfg.Amount)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requirements := &x402.PaymentRequirements{
				Scheme:            "exact",
				Network:           cfg.Network,
				MaxAmountRequired: maxAmountRequired.String(),
				Resource:          cfg.ResourceRootURL + req.URL.Path,
				Description:       cfg.Description,
				MimeType:          cfg.MimeType,
				PayTo:             cfg.PayTo,
				MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
				Asset:             cfg.Asset,
				OutputSchema:      cfg.OutputSchema,
			}

			payload, err := x402.DecodePayment(req.Header.Get(x402.PaymentHeader))
			if err != nil {
				return challenge(c, &cfg, requirements, "payment required")
			}

			verification, err := cfg.Facilitator.Verify(req.Context(), payload, requirements)
			if err != nil {
				log.Printf("x402: verify failed for %s: %v", req.URL.Path, err)
				return c.JSON(http.StatusInternalServerError, map[string]any{
					"error":       err.Error(),
					"x402Version": x402.ProtocolVersion,
				})
			}
			if !verification.IsValid {
				return challenge(c, &cfg, requirements, verification.InvalidReason)
			}

			settlement, err := cfg.Facilitator.Settle(req.Context(), payload, requirements)
			if err != nil || !settlement.Success {
				reason := "settlement failed"
				if err != nil {
					reason = err.Error()
				} else if settlement.ErrorReason != "" {
					reason = settlement.ErrorReason
				}
				log.Printf("x402: settle failed for %s: %s", req.URL.Path, reason)
				return c.JSON(http.StatusPaymentRequired, x402.PaymentRequired{
					X402Version: x402.ProtocolVersion,
					Error:       reason,
					Accepts:     []x402.PaymentRequirements{*requirements},
				})
			}

			receipt, err := x402.EncodeSettleResponse(*settlement)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]any{
					"error":       err.Error(),
					"x402Version": x402.ProtocolVersion,
				})
			}
			c.Response().Header().Set(x402.PaymentResponseHeader, receipt)

			return next(c)
		}
	}
}

func challenge(c echo.Context, cfg *Config, requirements *x402.PaymentRequirements, reason string) error {
	req := c.Request()
	if strings.Contains(req.Header.Get("Accept"), "text/html") &&
		strings.Contains(req.Header.Get("User-Agent"), "Mozilla") {
		html := cfg.CustomPaywallHTML
		if html == "" {
			html = fmt.Sprintf("<html><body><h1>Payment Required</h1><p>Pay %s stroops to <code>%s</code> on %s.</p></body></html>",
				requirements.MaxAmountRequired, requirements.PayTo, requirements.Network)
		}
		return c.HTML(http.StatusPaymentRequired, html)
	}
	return c.JSON(http.StatusPaymentRequired, x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       reason,
		Accepts:     []x402.PaymentRequirements{*requirements},
	})
}
