package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradepost/internal/order"
)

// OfferView is one ledger entry as served to a client.
type OfferView struct {
	ID           string          `json:"id"`
	ProposerID   string          `json:"proposer_id"`
	ProposerName string          `json:"proposer_name"`
	Price        decimal.Decimal `json:"proposed_price"`
	Message      string          `json:"message,omitempty"`
	Status       OfferStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// VerificationView exposes the handshake state. Each party only ever
// sees the code they own; the counterpart's code is handed over
// physically at delivery, never through the API.
type VerificationView struct {
	OwnCode            string `json:"own_code"`
	BuyerCodeVerified  bool   `json:"buyer_code_verified"`
	SellerCodeVerified bool   `json:"seller_code_verified"`
	IsCompleted        bool   `json:"is_completed"`
}

// Snapshot is the full authoritative view of one intent, fetched by
// the sync agent on every poll tick. Clients re-render it wholesale
// and never patch it incrementally.
type Snapshot struct {
	IntentID  string       `json:"purchase_intent_id"`
	ProductID string       `json:"product_id"`
	BuyerID   string       `json:"buyer_id"`
	SellerID  string       `json:"seller_id"`
	Status    IntentStatus `json:"status"`

	InitialPrice    decimal.Decimal  `json:"initial_price"`
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price,omitempty"`
	FinalPrice      *decimal.Decimal `json:"final_price,omitempty"`

	CanAcceptFinalPrice bool `json:"can_accept_final_price"`

	Offers []OfferView `json:"negotiations"`

	OrderID     *string          `json:"order_id,omitempty"`
	OrderStatus *order.Status    `json:"order_status,omitempty"`
	BuyerTotal  *decimal.Decimal `json:"buyer_total,omitempty"`

	Verification *VerificationView `json:"verification,omitempty"`

	CanReview bool   `json:"can_review"`
	ReviewURL string `json:"review_url,omitempty"`
}

// ReviewURL is where a party rates the counterparty once the order
// completed.
func ReviewURL(orderID string) string {
	return fmt.Sprintf("/c2c/orders/%s/review", orderID)
}

// Snapshot assembles the authoritative view of an intent for viewerID.
func (s *Service) Snapshot(ctx context.Context, intentID, viewerID string) (*Snapshot, error) {
	a, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "purchase intent not found")
		}
		return nil, err
	}
	return s.buildSnapshot(ctx, a, viewerID)
}

// SnapshotByParties resolves the intent by its (product, buyer,
// seller) tuple, the lookup the chat widget uses before it learns the
// intent id.
func (s *Service) SnapshotByParties(ctx context.Context, productID, buyerID, sellerID, viewerID string) (*Snapshot, error) {
	a, err := s.store.FindIntent(ctx, productID, buyerID, sellerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, E(CodeNotFound, "purchase intent not found")
		}
		return nil, err
	}
	return s.buildSnapshot(ctx, a, viewerID)
}

func (s *Service) buildSnapshot(ctx context.Context, a *Aggregate, viewerID string) (*Snapshot, error) {
	if !a.Intent.Participant(viewerID) {
		return nil, E(CodeNotParticipant, "you are not part of this negotiation")
	}

	snap := &Snapshot{
		IntentID:            a.Intent.ID,
		ProductID:           a.Intent.ProductID,
		BuyerID:             a.Intent.BuyerID,
		SellerID:            a.Intent.SellerID,
		Status:              a.Intent.Status,
		InitialPrice:        a.Intent.InitialPrice,
		NegotiatedPrice:     a.Intent.NegotiatedPrice,
		FinalPrice:          a.Intent.FinalPrice,
		CanAcceptFinalPrice: a.CanAcceptFinalPrice(),
		Offers:              make([]OfferView, 0, len(a.Offers)),
	}

	names := map[string]string{}
	for _, o := range a.Offers {
		name, ok := names[o.ProposerID]
		if !ok {
			var err error
			name, err = s.store.UserName(ctx, o.ProposerID)
			if err != nil {
				name = o.ProposerID
			}
			names[o.ProposerID] = name
		}
		snap.Offers = append(snap.Offers, OfferView{
			ID:           o.ID,
			ProposerID:   o.ProposerID,
			ProposerName: name,
			Price:        o.Price,
			Message:      o.Message,
			Status:       o.Status,
			CreatedAt:    o.CreatedAt,
		})
	}

	if a.Order != nil {
		id := a.Order.ID
		st := a.Order.Status
		total := a.Order.BuyerTotal
		snap.OrderID = &id
		snap.OrderStatus = &st
		snap.BuyerTotal = &total
	}
	if a.Verification != nil {
		own := a.Verification.BuyerCode
		if viewerID == a.Intent.SellerID {
			own = a.Verification.SellerCode
		}
		snap.Verification = &VerificationView{
			OwnCode:            own,
			BuyerCodeVerified:  a.Verification.BuyerCodeVerified,
			SellerCodeVerified: a.Verification.SellerCodeVerified,
			IsCompleted:        a.Verification.IsCompleted(),
		}
		if a.Verification.IsCompleted() {
			snap.CanReview = true
			snap.ReviewURL = ReviewURL(a.Order.ID)
		}
	}
	return snap, nil
}
