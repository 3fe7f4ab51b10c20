package negotiation

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"tradepost/internal/order"
)

// ErrNotFound is returned by store lookups when no row matches.
// Implementations return it unwrapped so callers can errors.Is it.
var ErrNotFound = errors.New("not found")

// ErrDuplicateIntent is returned by InsertIntent when a live intent
// for the same (product, buyer) already exists. It closes the window
// between a missed lookup and the insert when two creates race.
var ErrDuplicateIntent = errors.New("active intent already exists")

// Aggregate is everything the protocol may read or mutate for one
// intent in a single serialized step: the intent row, its full offer
// ledger in creation order, and the order/verification pair once one
// exists. Store implementations persist whatever the update function
// changed, atomically.
type Aggregate struct {
	Intent       Intent
	Offers       []Offer
	Order        *order.Order
	Verification *order.VerificationRecord
}

// LatestOffer returns the newest ledger entry, or nil.
func (a *Aggregate) LatestOffer() *Offer {
	if len(a.Offers) == 0 {
		return nil
	}
	return &a.Offers[len(a.Offers)-1]
}

// AcceptedOffer returns the newest accepted entry, or nil.
func (a *Aggregate) AcceptedOffer() *Offer {
	for i := len(a.Offers) - 1; i >= 0; i-- {
		if a.Offers[i].Status == OfferAccepted {
			return &a.Offers[i]
		}
	}
	return nil
}

// CanAcceptFinalPrice is the derived flag from the GET contract: a
// price has been accepted and no order has been spawned yet.
func (a *Aggregate) CanAcceptFinalPrice() bool {
	return a.Intent.Status == IntentAgreed && a.Order == nil && a.AcceptedOffer() != nil
}

// Listing is the slice of a product listing the protocol needs.
type Listing struct {
	ID       string
	SellerID string
	Title    string
	Price    decimal.Decimal
}

// Store is the persistence port for the protocol. Every mutating
// operation runs inside UpdateIntent (or one of its lookups-by-child),
// which must provide a serializable read-modify-write over the whole
// aggregate: the Postgres implementation locks the intent row FOR
// UPDATE for the duration of fn, the in-memory one holds a mutex.
// Two racing calls therefore observe each other's writes, which is
// what keeps "only the latest pending offer is actionable" and the
// monotonic verification flags safe under concurrent sessions.
type Store interface {
	UpdateIntent(ctx context.Context, intentID string, fn func(*Aggregate) error) error
	UpdateIntentByOffer(ctx context.Context, offerID string, fn func(*Aggregate) error) error
	UpdateIntentByOrder(ctx context.Context, orderID string, fn func(*Aggregate) error) error

	GetIntent(ctx context.Context, intentID string) (*Aggregate, error)
	// FindIntent returns the intent for (product, buyer, seller)
	// preferring an open one, then an agreed one.
	FindIntent(ctx context.Context, productID, buyerID, sellerID string) (*Aggregate, error)
	// FindIntentByBuyer returns the intent for (product, buyer) in any
	// status; used for dedupe and reactivation on create.
	FindIntentByBuyer(ctx context.Context, productID, buyerID string) (*Aggregate, error)
	// InsertIntent persists a brand-new intent. It returns
	// ErrDuplicateIntent when a live intent for the same
	// (product, buyer) already exists.
	InsertIntent(ctx context.Context, in *Intent) error

	Listing(ctx context.Context, listingID string) (*Listing, error)
	UserName(ctx context.Context, userID string) (string, error)
}
