package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cresco-money/cresco/internal/mobilemoney"
)

// RegisterMobileMoneyRoutes wires mobile-money linking and payment endpoints.
func RegisterMobileMoneyRoutes(r fiber.Router, h *mobilemoney.Handler) {
	r.Post("/mobile-money/link", h.Link)
	r.Post("/mobile-money/payments", h.Payment)
}
