package negotiation

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// Handler exposes the negotiation protocol over HTTP. All routes
// require auth middleware to have stored user_id on the context.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the negotiation routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/purchase-intent", h.GetSnapshot)
	g.POST("/products/:id/intent", h.CreateIntent)
	g.POST("/intents/:id/offers", h.SubmitOffer)
	g.POST("/offers/:id/accept", h.AcceptOffer)
	g.POST("/offers/:id/reject", h.RejectOffer)
	g.POST("/intents/:id/accept-final-price", h.AcceptFinalPrice)
	g.POST("/intents/:id/cancel", h.CancelIntent)
	g.POST("/intents/:id/reject", h.RejectIntent)
}

func viewer(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}

// fail renders a protocol error with its stable code; anything else
// becomes an opaque 500.
func fail(c echo.Context, err error) error {
	code := CodeOf(err)
	return c.JSON(HTTPStatus(code), echo.Map{
		"success":    false,
		"error_code": code,
		"error":      MessageOf(err),
	})
}

// GetSnapshot serves the authoritative conversation state the clients
// poll. The intent is addressed either by id or by its (product, buyer,
// seller) tuple.
func (h *Handler) GetSnapshot(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var (
		snap *Snapshot
		err  error
	)
	if intentID := c.QueryParam("intent_id"); intentID != "" {
		snap, err = h.svc.Snapshot(c.Request().Context(), intentID, userID)
	} else {
		productID := c.QueryParam("product_id")
		buyerID := c.QueryParam("buyer_id")
		sellerID := c.QueryParam("seller_id")
		if productID == "" || buyerID == "" || sellerID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "intent_id or product_id+buyer_id+seller_id required"})
		}
		snap, err = h.svc.SnapshotByParties(c.Request().Context(), productID, buyerID, sellerID, userID)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": snap})
}

// CreateIntent opens (or reuses) the buyer's negotiation thread on a
// listing.
func (h *Handler) CreateIntent(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	productID := c.Param("id")
	if productID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing product id in URL"})
	}

	in, err := h.svc.CreateIntent(c.Request().Context(), productID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": in})
}

// SubmitOffer appends a price proposal to the intent's ledger.
func (h *Handler) SubmitOffer(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	intentID := c.Param("id")

	var req struct {
		Price   decimal.Decimal `json:"proposed_price"`
		Message string          `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	off, err := h.svc.SubmitOffer(c.Request().Context(), intentID, userID, req.Price, req.Message)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": off})
}

func (h *Handler) AcceptOffer(c echo.Context) error {
	return h.respond(c, DecisionAccept)
}

func (h *Handler) RejectOffer(c echo.Context) error {
	return h.respond(c, DecisionReject)
}

func (h *Handler) respond(c echo.Context, d Decision) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	offerID := c.Param("id")

	in, err := h.svc.RespondToOffer(c.Request().Context(), offerID, userID, d)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": in})
}

// AcceptFinalPrice is the buyer's confirmation step: it turns the
// agreed price into an order. The client echoes back the price it is
// agreeing to, which guards against acting on a stale snapshot.
func (h *Handler) AcceptFinalPrice(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	intentID := c.Param("id")

	var req struct {
		FinalPrice decimal.Decimal `json:"final_price"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ord, err := h.svc.AcceptFinalPrice(c.Request().Context(), intentID, userID, req.FinalPrice)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": ord})
}

func (h *Handler) CancelIntent(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.svc.CancelIntent(c.Request().Context(), c.Param("id"), userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "purchase intent cancelled"})
}

func (h *Handler) RejectIntent(c echo.Context) error {
	userID, ok := viewer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.svc.RejectIntent(c.Request().Context(), c.Param("id"), userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "purchase intent rejected"})
}
