package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cresco-money/cresco/internal/faults"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type payRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// Pay submits a native-asset transfer from the authenticated user's wallet.
func (h *Handler) Pay(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	result, err := h.service.Pay(c.UserContext(), PayInput{
		UserID:      userID,
		Destination: req.Destination,
		Amount:      amount,
	})
	if err != nil {
		switch faults.KindOf(err) {
		case faults.KindUserInput:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case faults.KindDefinitiveRejection:
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case faults.KindRecoverableRemote:
			// Includes the ambiguous post-submission case; the client must
			// not blindly resubmit.
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"hash":         result.Hash,
		"ledger":       result.Ledger,
		"completed_at": result.CompletedAt,
	})
}
