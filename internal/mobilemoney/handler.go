package mobilemoney

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cresco-money/cresco/internal/faults"
)

// Handler exposes mobile-money endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a mobile-money handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type linkRequest struct {
	MobileNumber string `json:"mobile_number"`
}

// Link associates a phone number with the authenticated user. Exposed so a
// user whose signup-time linking failed can retry later.
func (h *Handler) Link(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	link, err := h.service.Link(c.UserContext(), userID, req.MobileNumber)
	if err != nil {
		return statusFromFault(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"mobile_number":  link.MobileNumber,
		"link_reference": link.LinkReference,
		"status":         link.Status,
	})
}

type paymentRequest struct {
	RecipientID     string `json:"recipient_id"`
	RecipientNumber string `json:"recipient_number"`
	Amount          string `json:"amount"`
}

// Payment sends an off-ledger transfer from the user's linked account.
func (h *Handler) Payment(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	result, err := h.service.Pay(c.UserContext(), PayInput{
		SenderUserID:    userID,
		RecipientID:     req.RecipientID,
		RecipientNumber: req.RecipientNumber,
		Amount:          amount,
	})
	if err != nil {
		return statusFromFault(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_reference": result.TransactionReference,
		"status":                result.Status,
		"completed_at":          result.CompletedAt,
	})
}

func statusFromFault(err error) error {
	switch faults.KindOf(err) {
	case faults.KindUserInput:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case faults.KindRecoverableRemote:
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case faults.KindDefinitiveRejection:
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
