// Command facilitator runs a standalone x402 facilitator for Stellar: it
// verifies payment envelopes against the ledger and settles them under
// fee-bump sponsorship, so resource servers never touch keys or Horizon.
//
// Configuration comes from the environment:
//
//	FACILITATOR_SECRET  fee-sponsor secret seed (required for settlement)
//	HORIZON_URL         Horizon endpoint override (optional)
//	PORT                listen port, default 3001
package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"

	x402 "github.com/stellar-x402/x402/go"
	x402http "github.com/stellar-x402/x402/go/http"
	"github.com/stellar-x402/x402/go/mechanisms/stellar"
	stellarsigner "github.com/stellar-x402/x402/go/signers/stellar"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	cfg := &stellar.FacilitatorConfig{
		HorizonURL: os.Getenv("HORIZON_URL"),
	}
	if secret := os.Getenv("FACILITATOR_SECRET"); secret != "" {
		signer, err := stellarsigner.NewKeypairSigner(secret)
		if err != nil {
			log.Fatalf("FACILITATOR_SECRET: %v", err)
		}
		cfg.Signer = signer
		log.Printf("facilitator account: %s", signer.Address())
	} else {
		log.Printf("FACILITATOR_SECRET not set: /verify works, /settle will fail")
	}

	facilitator := stellar.RegisterExactFacilitator(x402.Newx402Facilitator(), cfg)
	facilitator.OnAfterSettle(func(settleCtx x402.FacilitatorSettleContext, result x402.SettleResponse) error {
		if result.Success {
			log.Printf("settled %s on %s for %s", result.Transaction, result.Network, result.Payer)
		}
		return nil
	})

	router := gin.Default()
	x402http.RegisterFacilitatorRoutes(router, facilitator)

	log.Printf("listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
