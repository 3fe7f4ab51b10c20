// Package payments fronts the external payment gateway for negotiated
// orders. The gateway itself is mocked: init hands the buyer a payment
// reference, the gateway's callback confirms it.
package payments

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tradepost/internal/db"
	"tradepost/internal/messaging"
	"tradepost/internal/negotiation"
)

// Handler wires payment attempts to the negotiation core, which owns
// the order state transition.
type Handler struct {
	svc *negotiation.Service
}

func NewHandler(svc *negotiation.Service) *Handler {
	return &Handler{svc: svc}
}

func fail(c echo.Context, err error) error {
	code := negotiation.CodeOf(err)
	return c.JSON(negotiation.HTTPStatus(code), echo.Map{
		"success":    false,
		"error_code": code,
		"error":      negotiation.MessageOf(err),
	})
}

type initResponse struct {
	PaymentID  string `json:"payment_id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
}

// Init records a pending payment attempt for an order and returns the
// gateway URL the buyer should complete it at.
func (h *Handler) Init(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")

	// The eligibility read runs under the same intent lock as the rest
	// of the order transitions, so the status cannot move mid-check.
	if _, err := h.svc.BeginPayment(c.Request().Context(), orderID, userID); err != nil {
		return fail(c, err)
	}

	paymentID := uuid.New().String()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO payments (id, order_id, status, created_at)
		 VALUES ($1, $2, 'pending', $3)`,
		paymentID, orderID, time.Now(),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create payment"})
	}

	paymentURL := os.Getenv("MOCK_PAYMENT_URL")
	if paymentURL == "" {
		paymentURL = "https://pay.tradepost.dev/mock/" + paymentID
	}

	return c.JSON(http.StatusOK, initResponse{
		PaymentID:  paymentID,
		Status:     "pending",
		PaymentURL: paymentURL,
	})
}

// InitInstant settles an order the moment the buyer asks to pay. It
// replaces Init+Callback when the server runs on the in-memory store,
// where no gateway and no payments table exist.
func (h *Handler) InitInstant(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := c.Param("id")

	if _, err := h.svc.BeginPayment(c.Request().Context(), orderID, userID); err != nil {
		return fail(c, err)
	}
	paid, err := h.svc.MarkPaid(c.Request().Context(), orderID)
	if err != nil {
		return fail(c, err)
	}
	messaging.BroadcastStateChange(paid.IntentID, echo.Map{
		"order_id":     paid.ID,
		"order_status": paid.Status,
	})

	return c.JSON(http.StatusOK, initResponse{
		PaymentID:  "instant-" + orderID,
		Status:     "settled",
		PaymentURL: "",
	})
}

// Callback is the gateway webhook. It marks the payment settled and
// moves the order to paid; gateway retries are harmless because
// MarkPaid is idempotent.
func (h *Handler) Callback(c echo.Context) error {
	var req struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.PaymentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid callback payload"})
	}
	if req.Status != "success" {
		_, _ = db.Conn.Exec(context.Background(),
			`UPDATE payments SET status = 'failed' WHERE id = $1`, req.PaymentID)
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "payment failure recorded"})
	}

	var orderID string
	err := db.Conn.QueryRow(context.Background(),
		`SELECT order_id FROM payments WHERE id = $1`, req.PaymentID,
	).Scan(&orderID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
	}

	paid, err := h.svc.MarkPaid(c.Request().Context(), orderID)
	if err != nil {
		return fail(c, err)
	}
	messaging.BroadcastStateChange(paid.IntentID, echo.Map{
		"order_id":     paid.ID,
		"order_status": paid.Status,
	})

	_, _ = db.Conn.Exec(context.Background(),
		`UPDATE payments SET status = 'settled', settled_at = $2 WHERE id = $1`,
		req.PaymentID, time.Now())

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "payment confirmed"})
}
