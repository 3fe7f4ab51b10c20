package verification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tradepost/internal/messaging"
	"tradepost/internal/negotiation"
)

// Handler exposes the code submission endpoint. The route is expected
// to sit behind auth and the verify-code rate limiter.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the verification route on g with the given extra
// middleware (the per-user rate limiter in production).
func (h *Handler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/orders/:id/verify-code", h.SubmitCode, mw...)
}

// SubmitCode checks the delivery code a party typed in.
func (h *Handler) SubmitCode(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing verification code"})
	}

	res, err := h.svc.SubmitCode(c.Request().Context(), orderID, userID, req.Code)
	if err != nil {
		code := negotiation.CodeOf(err)
		return c.JSON(negotiation.HTTPStatus(code), echo.Map{
			"success":    false,
			"error_code": code,
			"error":      negotiation.MessageOf(err),
		})
	}
	messaging.BroadcastStateChange(res.IntentID, echo.Map{
		"order_id":     orderID,
		"is_completed": res.Completed,
	})
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": res})
}
