package balance

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cresco-money/cresco/internal/faults"
)

// Handler exposes the reconciled balance over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a balance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	Balance string `json:"balance"`
	Source  string `json:"source"`
	AsOf    string `json:"as_of"`
}

// Me returns the authenticated user's balance. The ledger value is preferred;
// when the ledger cannot be reached the last cached value is served instead
// of an error.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var cached, terminal Snapshot
	for snapshot := range h.service.Observe(c.UserContext(), userID) {
		switch snapshot.Source {
		case SourceCache:
			cached = snapshot
			terminal = snapshot
		default:
			terminal = snapshot
		}
	}

	if terminal.Source == SourceError {
		if cached.Source == SourceCache {
			return c.Status(http.StatusOK).JSON(toResponse(cached))
		}
		switch faults.KindOf(terminal.Err) {
		case faults.KindDefinitiveRejection:
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		default:
			return fiber.NewError(http.StatusServiceUnavailable, "ledger unreachable")
		}
	}
	if terminal.Source == SourceUnknown {
		return fiber.NewError(http.StatusNotFound, "no balance available")
	}

	return c.Status(http.StatusOK).JSON(toResponse(terminal))
}

func toResponse(snapshot Snapshot) balanceResponse {
	return balanceResponse{
		Balance: snapshot.Display(),
		Source:  snapshot.Source,
		AsOf:    snapshot.AsOf.UTC().Format(time.RFC3339Nano),
	}
}
