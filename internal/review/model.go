// Package review lets both parties of a completed order rate each
// other. Reviews unlock only after the delivery handshake finished.
package review

import "time"

type CreateReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type CreateReviewResponse struct {
	ReviewID string `json:"review_id"`
	Message  string `json:"message"`
}

type ReviewWithDetails struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerName string    `json:"reviewer_name"`
	RevieweeID   string    `json:"reviewee_id"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

type RatingCounts struct {
	FiveStar  int `json:"five_star"`
	FourStar  int `json:"four_star"`
	ThreeStar int `json:"three_star"`
	TwoStar   int `json:"two_star"`
	OneStar   int `json:"one_star"`
}

type SellerRatingSummary struct {
	SellerID      string       `json:"seller_id"`
	SellerName    string       `json:"seller_name"`
	TotalReviews  int          `json:"total_reviews"`
	AverageRating float64      `json:"average_rating"`
	RatingCounts  RatingCounts `json:"rating_counts"`
}
