package http

import (
	"log"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	x402 "github.com/stellar-x402/x402/go"
)

// RegisterFacilitatorRoutes mounts the facilitator HTTP API on router:
// POST /verify, POST /settle and GET /supported. Protocol outcomes —
// invalid payments, failed settlements — are reported with HTTP 200 and a
// structured body; only malformed requests get a 4xx.
func RegisterFacilitatorRoutes(router gin.IRouter, facilitator *x402.X402Facilitator) {
	router.POST("/verify", handleVerify(facilitator))
	router.POST("/settle", handleSettle(facilitator))
	router.GET("/supported", handleSupported(facilitator))
}

func handleVerify(facilitator *x402.X402Facilitator) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()

		var req facilitatorRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.PaymentPayload == nil || req.PaymentRequirements == nil {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": "request must carry paymentPayload and paymentRequirements"})
			return
		}

		result, err := facilitator.Verify(c.Request.Context(), *req.PaymentPayload, *req.PaymentRequirements)
		if err != nil {
			// Transport-level failure reaching the ledger, not a verdict.
			log.Printf("verify %s: %v", requestID, err)
			c.JSON(nethttp.StatusOK, x402.VerifyResponse{
				IsValid:       false,
				InvalidReason: x402.ErrorCode(err),
			})
			return
		}
		log.Printf("verify %s: valid=%t payer=%s", requestID, result.IsValid, result.Payer)
		c.JSON(nethttp.StatusOK, result)
	}
}

func handleSettle(facilitator *x402.X402Facilitator) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()

		var req facilitatorRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.PaymentPayload == nil || req.PaymentRequirements == nil {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": "request must carry paymentPayload and paymentRequirements"})
			return
		}

		result, err := facilitator.Settle(c.Request.Context(), *req.PaymentPayload, *req.PaymentRequirements)
		if err != nil {
			log.Printf("settle %s: %v", requestID, err)
			c.JSON(nethttp.StatusOK, x402.SettleResponse{
				Success:     false,
				ErrorReason: x402.ErrorCode(err),
				Network:     req.PaymentPayload.Network,
			})
			return
		}
		log.Printf("settle %s: success=%t tx=%s payer=%s", requestID, result.Success, result.Transaction, result.Payer)
		c.JSON(nethttp.StatusOK, result)
	}
}

func handleSupported(facilitator *x402.X402Facilitator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, facilitator.GetSupported())
	}
}
