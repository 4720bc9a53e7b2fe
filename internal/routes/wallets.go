package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cresco-money/cresco/internal/balance"
	"github.com/cresco-money/cresco/internal/provisioning"
)

// RegisterWalletRoutes wires wallet provisioning and balance endpoints.
func RegisterWalletRoutes(r fiber.Router, ph *provisioning.Handler, bh *balance.Handler, rateLimit fiber.Handler) {
	r.Post("/wallets", rateLimit, ph.Create)
	r.Get("/wallets/me/balance", bh.Me)
}
