package negotiation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus is the closed set of purchase intent states.
type IntentStatus string

const (
	IntentPending     IntentStatus = "pending"
	IntentNegotiating IntentStatus = "negotiating"
	IntentAgreed      IntentStatus = "agreed"
	IntentRejected    IntentStatus = "rejected"
	IntentCancelled   IntentStatus = "cancelled"
	IntentExpired     IntentStatus = "expired"
)

// ParseIntentStatus rejects unknown values instead of defaulting.
func ParseIntentStatus(s string) (IntentStatus, error) {
	switch st := IntentStatus(s); st {
	case IntentPending, IntentNegotiating, IntentAgreed,
		IntentRejected, IntentCancelled, IntentExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown intent status %q", s)
}

// Label returns the user-facing label, erroring on unknown values.
func (s IntentStatus) Label() (string, error) {
	switch s {
	case IntentPending:
		return "Awaiting seller", nil
	case IntentNegotiating:
		return "Negotiating", nil
	case IntentAgreed:
		return "Price agreed", nil
	case IntentRejected:
		return "Rejected", nil
	case IntentCancelled:
		return "Cancelled", nil
	case IntentExpired:
		return "Expired", nil
	}
	return "", fmt.Errorf("unknown intent status %q", string(s))
}

// Open reports whether offers may still be exchanged.
func (s IntentStatus) Open() bool {
	return s == IntentPending || s == IntentNegotiating
}

// Terminated reports whether the intent reached a dead end and may be
// reactivated by a fresh purchase attempt.
func (s IntentStatus) Terminated() bool {
	return s == IntentRejected || s == IntentCancelled || s == IntentExpired
}

// OfferStatus is the state of one ledger entry.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// ParseOfferStatus rejects unknown values instead of defaulting.
func ParseOfferStatus(s string) (OfferStatus, error) {
	switch st := OfferStatus(s); st {
	case OfferPending, OfferAccepted, OfferRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown offer status %q", s)
}

// Intent is one negotiation thread between a buyer and a seller over
// one listing. Product, buyer and seller are immutable after creation.
type Intent struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	BuyerID   string `json:"buyer_id"`
	SellerID  string `json:"seller_id"`

	Status IntentStatus `json:"status"`

	InitialPrice    decimal.Decimal  `json:"initial_price"`
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price,omitempty"`
	FinalPrice      *decimal.Decimal `json:"final_price,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	AgreedAt  *time.Time `json:"agreed_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Participant reports whether userID is the buyer or seller.
func (i *Intent) Participant(userID string) bool {
	return userID == i.BuyerID || userID == i.SellerID
}

// Counterparty returns the other side of the thread.
func (i *Intent) Counterparty(userID string) string {
	if userID == i.BuyerID {
		return i.SellerID
	}
	return i.BuyerID
}

// ExpiredBy reports whether the intent's window has passed at now.
func (i *Intent) ExpiredBy(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// Offer is one appended price proposal. Earlier entries are immutable
// history; only the most recent pending offer is actionable.
type Offer struct {
	ID         string          `json:"id"`
	IntentID   string          `json:"intent_id"`
	ProposerID string          `json:"proposer_id"`
	Price      decimal.Decimal `json:"proposed_price"`
	Message    string          `json:"message,omitempty"`

	Status      OfferStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	RespondedAt *time.Time  `json:"responded_at,omitempty"`
}
