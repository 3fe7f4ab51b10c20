package review

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"tradepost/internal/db"
)

// CreateReview records a rating for the counterparty of a completed
// order. Either side may review; each side at most once.
func CreateReview(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	if _, err := uuid.Parse(orderID); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id format"})
	}

	var req CreateReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rating must be between 1 and 5"})
	}
	if len(req.Comment) > 1000 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "comment too long (max 1000 characters)"})
	}

	ctx := context.Background()

	var buyerID, sellerID, status string
	err := db.Conn.QueryRow(ctx,
		`SELECT buyer_id, seller_id, status FROM c2c_orders WHERE id = $1`, orderID,
	).Scan(&buyerID, &sellerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch order"})
	}

	var revieweeID string
	switch userID {
	case buyerID:
		revieweeID = sellerID
	case sellerID:
		revieweeID = buyerID
	default:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this order"})
	}

	if status != "completed" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "can only review completed orders"})
	}

	var existing string
	err = db.Conn.QueryRow(ctx,
		`SELECT id FROM reviews WHERE order_id = $1 AND reviewer_id = $2`,
		orderID, userID,
	).Scan(&existing)
	if err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already reviewed this order"})
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check existing review"})
	}

	reviewID := uuid.New().String()
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO reviews (id, order_id, reviewer_id, reviewee_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reviewID, orderID, userID, revieweeID, req.Rating, req.Comment,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create review"})
	}

	return c.JSON(http.StatusCreated, CreateReviewResponse{
		ReviewID: reviewID,
		Message:  "review created successfully",
	})
}

// GetSellerReviews returns reviews received by a user plus a rating
// summary.
func GetSellerReviews(c echo.Context) error {
	sellerID := c.Param("id")
	if sellerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing seller id"})
	}

	page := 1
	limit := 10
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 50 {
		limit = l
	}
	offset := (page - 1) * limit

	ctx := context.Background()

	var sellerName string
	err := db.Conn.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, sellerID).Scan(&sellerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seller not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch seller"})
	}

	summary := SellerRatingSummary{SellerID: sellerID, SellerName: sellerName}
	err = db.Conn.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews WHERE reviewee_id = $1`,
		sellerID,
	).Scan(&summary.TotalReviews, &summary.AverageRating)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch rating summary"})
	}

	rows, err := db.Conn.Query(ctx,
		`SELECT rating, COUNT(*) FROM reviews WHERE reviewee_id = $1 GROUP BY rating`,
		sellerID,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch rating breakdown"})
	}
	defer rows.Close()
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			continue
		}
		switch rating {
		case 5:
			summary.RatingCounts.FiveStar = count
		case 4:
			summary.RatingCounts.FourStar = count
		case 3:
			summary.RatingCounts.ThreeStar = count
		case 2:
			summary.RatingCounts.TwoStar = count
		case 1:
			summary.RatingCounts.OneStar = count
		}
	}

	reviewRows, err := db.Conn.Query(ctx,
		`SELECT r.id, r.order_id, r.reviewer_id, u.name, r.reviewee_id, r.rating, r.comment, r.created_at
		 FROM reviews r
		 JOIN users u ON r.reviewer_id = u.id
		 WHERE r.reviewee_id = $1
		 ORDER BY r.created_at DESC
		 LIMIT $2 OFFSET $3`,
		sellerID, limit, offset,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch reviews"})
	}
	defer reviewRows.Close()

	reviews := []ReviewWithDetails{}
	for reviewRows.Next() {
		var r ReviewWithDetails
		if err := reviewRows.Scan(
			&r.ID, &r.OrderID, &r.ReviewerID, &r.ReviewerName,
			&r.RevieweeID, &r.Rating, &r.Comment, &r.CreatedAt,
		); err != nil {
			continue
		}
		reviews = append(reviews, r)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"seller_summary": summary,
		"reviews":        reviews,
		"pagination": echo.Map{
			"page":  page,
			"limit": limit,
			"total": summary.TotalReviews,
		},
	})
}

// GetOrderReview returns the reviews written for one order.
func GetOrderReview(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	ctx := context.Background()

	var buyerID, sellerID string
	err := db.Conn.QueryRow(ctx,
		`SELECT buyer_id, seller_id FROM c2c_orders WHERE id = $1`, orderID,
	).Scan(&buyerID, &sellerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch order"})
	}
	if userID != buyerID && userID != sellerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized to view this order's reviews"})
	}

	rows, err := db.Conn.Query(ctx,
		`SELECT r.id, r.order_id, r.reviewer_id, u.name, r.reviewee_id, r.rating, r.comment, r.created_at
		 FROM reviews r
		 JOIN users u ON r.reviewer_id = u.id
		 WHERE r.order_id = $1
		 ORDER BY r.created_at ASC`,
		orderID,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch reviews"})
	}
	defer rows.Close()

	reviews := []ReviewWithDetails{}
	for rows.Next() {
		var r ReviewWithDetails
		if err := rows.Scan(
			&r.ID, &r.OrderID, &r.ReviewerID, &r.ReviewerName,
			&r.RevieweeID, &r.Rating, &r.Comment, &r.CreatedAt,
		); err != nil {
			continue
		}
		reviews = append(reviews, r)
	}

	return c.JSON(http.StatusOK, echo.Map{"reviews": reviews})
}
