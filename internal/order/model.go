package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the closed set of order lifecycle states. An order is
// created pending_payment when the buyer accepts the final price and
// only ever moves forward; completed is reachable exclusively through
// the delivery verification handshake.
type Status string

const (
	StatusPendingPayment  Status = "pending_payment"
	StatusPaid            Status = "paid"
	StatusPendingDelivery Status = "pending_delivery"
	StatusDelivered       Status = "delivered"
	StatusVerified        Status = "verified"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// ParseStatus rejects unknown values instead of defaulting.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPendingPayment, StatusPaid, StatusPendingDelivery,
		StatusDelivered, StatusVerified, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Label returns the user-facing label for a status and errors on
// unknown values so typos surface in development.
func (s Status) Label() (string, error) {
	switch s {
	case StatusPendingPayment:
		return "Awaiting payment", nil
	case StatusPaid:
		return "Paid", nil
	case StatusPendingDelivery:
		return "Awaiting delivery", nil
	case StatusDelivered:
		return "Delivered", nil
	case StatusVerified:
		return "Verified", nil
	case StatusCompleted:
		return "Completed", nil
	case StatusCancelled:
		return "Cancelled", nil
	}
	return "", fmt.Errorf("unknown order status %q", string(s))
}

// PaidOrLater reports whether the buyer's money has been captured.
// The verification handshake is only reachable from these states.
func (s Status) PaidOrLater() bool {
	switch s {
	case StatusPaid, StatusPendingDelivery, StatusDelivered, StatusVerified, StatusCompleted:
		return true
	}
	return false
}

// Order is created once a final price is accepted on a purchase intent.
type Order struct {
	ID       string `json:"id"`
	IntentID string `json:"intent_id"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`

	FinalPrice         decimal.Decimal `json:"final_price"`
	BuyerCommission    decimal.Decimal `json:"buyer_commission"`
	SellerCommission   decimal.Decimal `json:"seller_commission"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	SellerNet          decimal.Decimal `json:"seller_net"`
	BuyerTotal         decimal.Decimal `json:"buyer_total"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// VerificationRecord holds the double-code delivery handshake for one
// order. The buyer hands buyer_code to the seller at the physical
// handoff and submits the seller_code they received; each code is only
// ever checked against the counterpart's submission.
type VerificationRecord struct {
	OrderID string `json:"order_id"`

	BuyerCode  string `json:"buyer_code"`
	SellerCode string `json:"seller_code"`

	BuyerCodeVerified  bool `json:"buyer_code_verified"`
	SellerCodeVerified bool `json:"seller_code_verified"`

	BuyerVerifiedAt  *time.Time `json:"buyer_code_verified_at,omitempty"`
	SellerVerifiedAt *time.Time `json:"seller_code_verified_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsCompleted is derived, never stored: both flags must be set.
func (v *VerificationRecord) IsCompleted() bool {
	return v.BuyerCodeVerified && v.SellerCodeVerified
}
