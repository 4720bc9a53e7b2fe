package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cresco-money/cresco/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/payments", h.Pay)
}
