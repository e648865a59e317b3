package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/funding"
)

// RegisterFundingRoutes wires funding and withdrawal endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallets/:walletId/fund", h.Fund)
	r.Post("/wallets/:walletId/withdraw", h.Withdraw)
}
