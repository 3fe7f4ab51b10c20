// Package memstore is an in-process implementation of the negotiation
// store. It backs the protocol tests and the STORE_DRIVER=memory dev
// mode; a single mutex serializes every read-modify-write the same way
// the Postgres implementation's row locks do.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradepost/internal/negotiation"
)

type Store struct {
	mu       sync.Mutex
	intents  map[string]*negotiation.Aggregate
	byOffer  map[string]string // offer id -> intent id
	byOrder  map[string]string // order id -> intent id
	listings map[string]negotiation.Listing
	users    map[string]string // user id -> display name
}

func New() *Store {
	return &Store{
		intents:  make(map[string]*negotiation.Aggregate),
		byOffer:  make(map[string]string),
		byOrder:  make(map[string]string),
		listings: make(map[string]negotiation.Listing),
		users:    make(map[string]string),
	}
}

// AddListing seeds a listing.
func (s *Store) AddListing(l negotiation.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

// AddUser seeds a display name.
func (s *Store) AddUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

func (s *Store) UpdateIntent(ctx context.Context, intentID string, fn func(*negotiation.Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(intentID, fn)
}

func (s *Store) UpdateIntentByOffer(ctx context.Context, offerID string, fn func(*negotiation.Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intentID, ok := s.byOffer[offerID]
	if !ok {
		return negotiation.ErrNotFound
	}
	return s.updateLocked(intentID, fn)
}

func (s *Store) UpdateIntentByOrder(ctx context.Context, orderID string, fn func(*negotiation.Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intentID, ok := s.byOrder[orderID]
	if !ok {
		return negotiation.ErrNotFound
	}
	return s.updateLocked(intentID, fn)
}

// updateLocked hands fn a deep copy and commits it only on success, so
// a failed update leaves no partial mutation behind.
func (s *Store) updateLocked(intentID string, fn func(*negotiation.Aggregate) error) error {
	a, ok := s.intents[intentID]
	if !ok {
		return negotiation.ErrNotFound
	}
	work := cloneAggregate(a)
	if err := fn(work); err != nil {
		return err
	}
	s.intents[intentID] = work
	for i := range work.Offers {
		s.byOffer[work.Offers[i].ID] = intentID
	}
	if work.Order != nil {
		s.byOrder[work.Order.ID] = intentID
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, intentID string) (*negotiation.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.intents[intentID]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	return cloneAggregate(a), nil
}

func (s *Store) FindIntent(ctx context.Context, productID, buyerID, sellerID string) (*negotiation.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fallback *negotiation.Aggregate
	for _, a := range s.intents {
		in := a.Intent
		if in.ProductID != productID || in.BuyerID != buyerID || in.SellerID != sellerID {
			continue
		}
		if in.Status.Open() {
			return cloneAggregate(a), nil
		}
		if in.Status == negotiation.IntentAgreed && fallback == nil {
			fallback = a
		}
	}
	if fallback != nil {
		return cloneAggregate(fallback), nil
	}
	return nil, negotiation.ErrNotFound
}

func (s *Store) FindIntentByBuyer(ctx context.Context, productID, buyerID string) (*negotiation.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *negotiation.Aggregate
	for _, a := range s.intents {
		if a.Intent.ProductID != productID || a.Intent.BuyerID != buyerID {
			continue
		}
		if latest == nil || a.Intent.CreatedAt.After(latest.Intent.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, negotiation.ErrNotFound
	}
	return cloneAggregate(latest), nil
}

func (s *Store) InsertIntent(ctx context.Context, in *negotiation.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.intents {
		if a.Intent.ProductID != in.ProductID || a.Intent.BuyerID != in.BuyerID {
			continue
		}
		if a.Intent.Status.Open() || a.Intent.Status == negotiation.IntentAgreed {
			return negotiation.ErrDuplicateIntent
		}
	}
	cp := *in
	s.intents[in.ID] = &negotiation.Aggregate{Intent: cp}
	return nil
}

func (s *Store) Listing(ctx context.Context, listingID string) (*negotiation.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	return &l, nil
}

func (s *Store) UserName(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.users[userID]
	if !ok {
		return "", negotiation.ErrNotFound
	}
	return name, nil
}

func cloneAggregate(a *negotiation.Aggregate) *negotiation.Aggregate {
	cp := &negotiation.Aggregate{Intent: a.Intent}
	cp.Intent.NegotiatedPrice = cloneDecimal(a.Intent.NegotiatedPrice)
	cp.Intent.FinalPrice = cloneDecimal(a.Intent.FinalPrice)
	cp.Intent.AgreedAt = cloneTimePtr(a.Intent.AgreedAt)
	cp.Intent.ExpiresAt = cloneTimePtr(a.Intent.ExpiresAt)
	cp.Offers = make([]negotiation.Offer, len(a.Offers))
	for i, o := range a.Offers {
		cp.Offers[i] = o
		cp.Offers[i].RespondedAt = cloneTimePtr(o.RespondedAt)
	}
	if a.Order != nil {
		o := *a.Order
		o.PaidAt = cloneTimePtr(a.Order.PaidAt)
		o.CompletedAt = cloneTimePtr(a.Order.CompletedAt)
		cp.Order = &o
	}
	if a.Verification != nil {
		v := *a.Verification
		v.BuyerVerifiedAt = cloneTimePtr(a.Verification.BuyerVerifiedAt)
		v.SellerVerifiedAt = cloneTimePtr(a.Verification.SellerVerifiedAt)
		v.CompletedAt = cloneTimePtr(a.Verification.CompletedAt)
		cp.Verification = &v
	}
	return cp
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
