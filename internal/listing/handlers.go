// Package listing manages the second-hand product listings buyers open
// purchase intents against.
package listing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"tradepost/internal/db"
)

type Listing struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateListing puts a product up for sale.
func CreateListing(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Title == "" || req.Price.LessThanOrEqual(decimal.Zero) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and a valid price are required"})
	}

	listingID := uuid.New().String()
	_, err := db.Conn.Exec(
		context.Background(),
		`INSERT INTO listings (id, seller_id, title, description, price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', $6)`,
		listingID, uid, req.Title, req.Description, req.Price, time.Now(),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create listing"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"listing_id": listingID,
		"message":    "listing created successfully",
	})
}

// GetAllListings returns active listings with optional search and
// price filters.
func GetAllListings(c echo.Context) error {
	q := c.QueryParam("q")
	minPrice := c.QueryParam("min_price")
	maxPrice := c.QueryParam("max_price")
	limit := 20
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	where := []string{"status = 'active'"}
	var args []any
	if q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if minPrice != "" {
		args = append(args, minPrice)
		where = append(where, fmt.Sprintf("price >= $%d", len(args)))
	}
	if maxPrice != "" {
		args = append(args, maxPrice)
		where = append(where, fmt.Sprintf("price <= $%d", len(args)))
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, seller_id, title, description, price, status, created_at
		FROM listings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := db.Conn.Query(context.Background(), query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch listings"})
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Status, &l.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not read listings"})
		}
		listings = append(listings, l)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": listings})
}

// GetListing returns one listing by id.
func GetListing(c echo.Context) error {
	var l Listing
	err := db.Conn.QueryRow(context.Background(), `
		SELECT id, seller_id, title, description, price, status, created_at
		FROM listings WHERE id = $1`, c.Param("id"),
	).Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Status, &l.CreatedAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": l})
}
