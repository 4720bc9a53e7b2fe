package provisioning

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cresco-money/cresco/internal/faults"
)

// Handler exposes wallet provisioning over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a provisioning handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type provisionRequest struct {
	MobileNumber string `json:"mobile_number"`
}

type provisionResponse struct {
	UserID        string `json:"user_id"`
	PublicKey     string `json:"public_key"`
	NativeBalance string `json:"native_balance,omitempty"`
	LinkStatus    string `json:"link_status"`
	LinkReference string `json:"link_reference,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// Create provisions a wallet for the authenticated user. A failed mobile
// money link still returns 201; the warning field carries the degradation.
func (h *Handler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Provision(c.UserContext(), Input{UserID: userID, MobileNumber: req.MobileNumber})
	if err != nil {
		switch faults.KindOf(err) {
		case faults.KindUserInput:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case faults.KindRecoverableRemote:
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		case faults.KindDefinitiveRejection:
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(provisionResponse{
		UserID:        result.UserID,
		PublicKey:     result.PublicKey,
		NativeBalance: result.NativeBalance,
		LinkStatus:    result.Link.Status,
		LinkReference: result.Link.LinkReference,
		Warning:       result.Link.Warning,
	})
}
