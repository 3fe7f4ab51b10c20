package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"tradepost/internal/order"
)

// IntentTTL is how long a purchase intent stays open without reaching
// an agreement before it expires.
const IntentTTL = 7 * 24 * time.Hour

// Decision is a response to a pending offer.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Notifier is the capability port for counterparty notifications.
// Calls are made after the mutation committed and are best-effort;
// the protocol never fails because a notification could not be sent.
type Notifier interface {
	OfferProposed(ctx context.Context, intent Intent, offer Offer)
	OfferResponded(ctx context.Context, intent Intent, offer Offer, accepted bool)
	OrderCreated(ctx context.Context, intent Intent, o order.Order)
	OrderPaid(ctx context.Context, intent Intent, o order.Order)
	OrderCompleted(ctx context.Context, intent Intent, o order.Order)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OfferProposed(context.Context, Intent, Offer)         {}
func (NopNotifier) OfferResponded(context.Context, Intent, Offer, bool)  {}
func (NopNotifier) OrderCreated(context.Context, Intent, order.Order)    {}
func (NopNotifier) OrderPaid(context.Context, Intent, order.Order)       {}
func (NopNotifier) OrderCompleted(context.Context, Intent, order.Order)  {}

// Service owns the negotiation ledger and the purchase intent state
// machine. All writes go through the store's serialized update so the
// invariants hold under concurrent buyer/seller sessions.
type Service struct {
	store    Store
	notifier Notifier
	rates    order.CommissionRates
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the protocol core.
func NewService(store Store, notifier Notifier, rates order.CommissionRates, opts ...Option) *Service {
	s := &Service{store: store, notifier: notifier, rates: rates, now: time.Now}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateIntent opens (or reuses) the negotiation thread for a buyer on
// a listing. An active intent for the same (product, buyer) is
// returned as-is; a terminated one is reactivated with fresh pricing.
func (s *Service) CreateIntent(ctx context.Context, productID, buyerID string) (*Intent, error) {
	listing, err := s.store.Listing(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "listing not found")
		}
		return nil, err
	}
	if listing.SellerID == buyerID {
		return nil, E(CodeSelfPurchase, "you cannot buy your own listing")
	}

	now := s.now()
	existing, err := s.store.FindIntentByBuyer(ctx, productID, buyerID)
	switch {
	case err == nil && (existing.Intent.Status.Open() || existing.Intent.Status == IntentAgreed):
		in := existing.Intent
		return &in, nil
	case err == nil && existing.Intent.Status.Terminated():
		var reactivated Intent
		err = s.store.UpdateIntent(ctx, existing.Intent.ID, func(a *Aggregate) error {
			expires := now.Add(IntentTTL)
			a.Intent.Status = IntentPending
			a.Intent.InitialPrice = listing.Price
			a.Intent.NegotiatedPrice = nil
			a.Intent.FinalPrice = nil
			a.Intent.AgreedAt = nil
			a.Intent.ExpiresAt = &expires
			a.Intent.UpdatedAt = now
			reactivated = a.Intent
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &reactivated, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	expires := now.Add(IntentTTL)
	intent := &Intent{
		ID:           uuid.New().String(),
		ProductID:    productID,
		BuyerID:      buyerID,
		SellerID:     listing.SellerID,
		Status:       IntentPending,
		InitialPrice: listing.Price,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    &expires,
	}
	if err := s.store.InsertIntent(ctx, intent); err != nil {
		if errors.Is(err, ErrDuplicateIntent) {
			// Lost a race against a concurrent create for the same
			// (product, buyer); the winner's thread is the thread.
			won, ferr := s.store.FindIntentByBuyer(ctx, productID, buyerID)
			if ferr != nil {
				return nil, ferr
			}
			in := won.Intent
			return &in, nil
		}
		return nil, err
	}
	return intent, nil
}

// SubmitOffer appends a pending offer to the intent's ledger. Any
// earlier pending offer stays in history but stops being actionable.
func (s *Service) SubmitOffer(ctx context.Context, intentID, proposerID string, price decimal.Decimal, message string) (*Offer, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, E(CodeInvalidPrice, "the proposed price must be greater than 0")
	}

	var (
		created Offer
		intent  Intent
	)
	now := s.now()
	err := s.store.UpdateIntent(ctx, intentID, func(a *Aggregate) error {
		if !a.Intent.Participant(proposerID) {
			return E(CodeNotParticipant, "you are not part of this negotiation")
		}
		if a.Intent.ExpiredBy(now) {
			return E(CodeIntentClosed, "this purchase intent has expired")
		}
		if !a.Intent.Status.Open() {
			return E(CodeIntentClosed, "this negotiation is no longer open")
		}

		created = Offer{
			ID:         ulid.Make().String(),
			IntentID:   a.Intent.ID,
			ProposerID: proposerID,
			Price:      price,
			Message:    message,
			Status:     OfferPending,
			CreatedAt:  now,
		}
		a.Offers = append(a.Offers, created)

		a.Intent.Status = IntentNegotiating
		p := price
		a.Intent.NegotiatedPrice = &p
		a.Intent.UpdatedAt = now
		intent = a.Intent
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNoActiveIntent, "no active purchase intent")
		}
		return nil, err
	}

	s.notifier.OfferProposed(ctx, intent, created)
	return &created, nil
}

// RespondToOffer accepts or rejects the latest pending offer. Only the
// non-proposer may respond, and only to the newest ledger entry.
func (s *Service) RespondToOffer(ctx context.Context, offerID, responderID string, decision Decision) (*Intent, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, E(CodeInternal, "unknown decision")
	}

	var (
		intent    Intent
		responded Offer
	)
	now := s.now()
	err := s.store.UpdateIntentByOffer(ctx, offerID, func(a *Aggregate) error {
		var target *Offer
		for i := range a.Offers {
			if a.Offers[i].ID == offerID {
				target = &a.Offers[i]
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}
		if !a.Intent.Participant(responderID) {
			return E(CodeNotParticipant, "you are not part of this negotiation")
		}
		if responderID == target.ProposerID {
			return E(CodeSelfResponse, "you cannot respond to your own offer")
		}
		if !a.Intent.Status.Open() {
			return E(CodeIntentClosed, "this negotiation is no longer open")
		}
		latest := a.LatestOffer()
		if target.Status != OfferPending || latest == nil || latest.ID != target.ID {
			return E(CodeNotLatestOffer, "a newer offer has superseded this one")
		}

		switch decision {
		case DecisionAccept:
			target.Status = OfferAccepted
			target.RespondedAt = &now
			// Earlier pending entries become rejected history.
			for i := range a.Offers {
				if a.Offers[i].ID != target.ID && a.Offers[i].Status == OfferPending {
					a.Offers[i].Status = OfferRejected
					a.Offers[i].RespondedAt = &now
				}
			}
			a.Intent.Status = IntentAgreed
			p := target.Price
			a.Intent.NegotiatedPrice = &p
			a.Intent.AgreedAt = &now
		case DecisionReject:
			target.Status = OfferRejected
			target.RespondedAt = &now
			// negotiated_price is retained for display; it is
			// non-binding until the next accepted offer.
		}
		a.Intent.UpdatedAt = now
		intent = a.Intent
		responded = *target
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "offer not found")
		}
		return nil, err
	}

	s.notifier.OfferResponded(ctx, intent, responded, decision == DecisionAccept)
	return &intent, nil
}

// AcceptFinalPrice is the buyer's confirmation that spawns the order.
// It is idempotent: if an order already exists for the intent, that
// order is returned instead of a duplicate being created.
func (s *Service) AcceptFinalPrice(ctx context.Context, intentID, buyerID string, finalPrice decimal.Decimal) (*order.Order, error) {
	var (
		created *order.Order
		intent  Intent
		fresh   bool
	)
	now := s.now()
	err := s.store.UpdateIntent(ctx, intentID, func(a *Aggregate) error {
		if !a.Intent.Participant(buyerID) {
			return E(CodeNotParticipant, "you are not part of this negotiation")
		}
		if buyerID != a.Intent.BuyerID {
			return E(CodeNotParticipant, "only the buyer can accept the final price")
		}
		if a.Order != nil {
			created = a.Order
			return nil
		}
		if a.Intent.Status != IntentAgreed || a.AcceptedOffer() == nil {
			return E(CodeNotAgreed, "no accepted offer to finalize")
		}
		if a.Intent.NegotiatedPrice == nil || !finalPrice.Equal(*a.Intent.NegotiatedPrice) {
			// Stale client state: the agreed price moved underneath it.
			return E(CodePriceMismatch, "the final price does not match the agreed price")
		}

		buyerCode, sellerCode, err := order.NewCodePair()
		if err != nil {
			return err
		}
		c := s.rates.Calculate(finalPrice)
		o := &order.Order{
			ID:                 uuid.New().String(),
			IntentID:           a.Intent.ID,
			BuyerID:            a.Intent.BuyerID,
			SellerID:           a.Intent.SellerID,
			FinalPrice:         finalPrice,
			BuyerCommission:    c.BuyerCommission,
			SellerCommission:   c.SellerCommission,
			PlatformCommission: c.PlatformCommission,
			SellerNet:          c.SellerNet,
			BuyerTotal:         c.BuyerTotal,
			Status:             order.StatusPendingPayment,
			CreatedAt:          now,
		}
		a.Order = o
		a.Verification = &order.VerificationRecord{
			OrderID:    o.ID,
			BuyerCode:  buyerCode,
			SellerCode: sellerCode,
			CreatedAt:  now,
		}
		fp := finalPrice
		a.Intent.FinalPrice = &fp
		a.Intent.UpdatedAt = now
		created = o
		intent = a.Intent
		fresh = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNoActiveIntent, "no active purchase intent")
		}
		return nil, err
	}

	if fresh {
		s.notifier.OrderCreated(ctx, intent, *created)
	}
	return created, nil
}

// BeginPayment checks, under the same lock as every other order
// mutation, that buyerID may start a payment attempt for orderID right
// now, and returns the order it would settle.
func (s *Service) BeginPayment(ctx context.Context, orderID, buyerID string) (*order.Order, error) {
	var o order.Order
	err := s.store.UpdateIntentByOrder(ctx, orderID, func(a *Aggregate) error {
		if a.Order == nil {
			return ErrNotFound
		}
		if buyerID != a.Intent.BuyerID {
			return E(CodeNotParticipant, "only the buyer can pay for this order")
		}
		if a.Order.Status != order.StatusPendingPayment {
			return E(CodeOrderState, "order is not awaiting payment")
		}
		o = *a.Order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &o, nil
}

// MarkPaid records the payment collaborator's confirmation. Repeated
// confirmations for an already-paid order are a no-op.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (*order.Order, error) {
	var (
		paid   *order.Order
		intent Intent
		moved  bool
	)
	now := s.now()
	err := s.store.UpdateIntentByOrder(ctx, orderID, func(a *Aggregate) error {
		if a.Order == nil {
			return ErrNotFound
		}
		switch {
		case a.Order.Status == order.StatusPendingPayment:
			a.Order.Status = order.StatusPaid
			a.Order.PaidAt = &now
			moved = true
		case a.Order.Status.PaidOrLater():
			// already paid, keep idempotent
		default:
			return E(CodeOrderState, "order cannot be paid in its current state")
		}
		paid = a.Order
		intent = a.Intent
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "order not found")
		}
		return nil, err
	}

	if moved {
		s.notifier.OrderPaid(ctx, intent, *paid)
	}
	return paid, nil
}

// CancelIntent closes an open intent; either party may do it.
func (s *Service) CancelIntent(ctx context.Context, intentID, actorID string) error {
	return s.closeIntent(ctx, intentID, actorID, IntentCancelled, false)
}

// RejectIntent is the seller declining to negotiate at all.
func (s *Service) RejectIntent(ctx context.Context, intentID, sellerID string) error {
	return s.closeIntent(ctx, intentID, sellerID, IntentRejected, true)
}

func (s *Service) closeIntent(ctx context.Context, intentID, actorID string, to IntentStatus, sellerOnly bool) error {
	now := s.now()
	err := s.store.UpdateIntent(ctx, intentID, func(a *Aggregate) error {
		if !a.Intent.Participant(actorID) {
			return E(CodeNotParticipant, "you are not part of this negotiation")
		}
		if sellerOnly && actorID != a.Intent.SellerID {
			return E(CodeNotParticipant, "only the seller can reject a purchase intent")
		}
		if !a.Intent.Status.Open() {
			return E(CodeIntentClosed, "this purchase intent can no longer be closed")
		}
		a.Intent.Status = to
		a.Intent.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return E(CodeNoActiveIntent, "no active purchase intent")
	}
	return err
}
