package alerts

import (
	"context"
	"fmt"
	"log"

	"tradepost/internal/db"
	"tradepost/internal/negotiation"
	"tradepost/internal/order"
)

// Notifier adapts the alert pipeline to the negotiation core's
// notification port. Everything here is best-effort: failures are
// logged, never propagated back into the protocol.
type Notifier struct{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func userEmail(userID string) string {
	var email string
	_ = db.Conn.QueryRow(context.Background(),
		`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	return email
}

func (n *Notifier) OfferProposed(ctx context.Context, in negotiation.Intent, off negotiation.Offer) {
	recipient := in.Counterparty(off.ProposerID)
	price := off.Price.StringFixed(2)

	ref := off.ID
	if err := CreateNotification(recipient, "offer:new", "New price offer",
		fmt.Sprintf("An offer of %s was made in your negotiation.", price), &ref); err != nil {
		log.Printf("[notify][ERROR] offer notification failed: %v", err)
	}
	if email := userEmail(recipient); email != "" {
		if err := EnqueueOfferProposed(in.ID, off.ID, off.ProposerID, email, price); err != nil {
			log.Printf("[notify][ERROR] offer email enqueue failed: %v", err)
		}
	}
}

func (n *Notifier) OfferResponded(ctx context.Context, in negotiation.Intent, off negotiation.Offer, accepted bool) {
	price := off.Price.StringFixed(2)
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}

	ref := off.ID
	if err := CreateNotification(off.ProposerID, "offer:responded", "Offer "+verdict,
		fmt.Sprintf("Your offer of %s was %s.", price, verdict), &ref); err != nil {
		log.Printf("[notify][ERROR] response notification failed: %v", err)
	}
	if email := userEmail(off.ProposerID); email != "" {
		if err := EnqueueOfferResponded(in.ID, off.ID, email, price, accepted); err != nil {
			log.Printf("[notify][ERROR] response email enqueue failed: %v", err)
		}
	}
}

func (n *Notifier) OrderCreated(ctx context.Context, in negotiation.Intent, o order.Order) {
	amount := o.FinalPrice.StringFixed(2)
	ref := o.ID
	if err := CreateNotification(o.SellerID, "order:created", "Price confirmed",
		fmt.Sprintf("The buyer confirmed %s. The order awaits payment.", amount), &ref); err != nil {
		log.Printf("[notify][ERROR] order-created notification failed: %v", err)
	}
	if email := userEmail(o.SellerID); email != "" {
		if err := EnqueueOrderCreated(o.ID, in.ID, o.BuyerID, o.SellerID, email, amount); err != nil {
			log.Printf("[notify][ERROR] order-created email enqueue failed: %v", err)
		}
	}
}

func (n *Notifier) OrderPaid(ctx context.Context, in negotiation.Intent, o order.Order) {
	amount := o.FinalPrice.StringFixed(2)
	ref := o.ID
	if err := CreateNotification(o.SellerID, "order:paid", "Order paid",
		"The buyer's payment settled. Arrange the handoff in the thread.", &ref); err != nil {
		log.Printf("[notify][ERROR] order-paid notification failed: %v", err)
	}
	if email := userEmail(o.SellerID); email != "" {
		if err := EnqueueOrderPaid(o.ID, in.ID, o.BuyerID, o.SellerID, email, amount); err != nil {
			log.Printf("[notify][ERROR] order-paid email enqueue failed: %v", err)
		}
	}
}

func (n *Notifier) OrderCompleted(ctx context.Context, in negotiation.Intent, o order.Order) {
	amount := o.FinalPrice.StringFixed(2)
	ref := o.ID
	for _, uid := range []string{o.BuyerID, o.SellerID} {
		if err := CreateNotification(uid, "order:completed", "Order completed",
			"Both delivery codes verified. You can now review your counterparty.", &ref); err != nil {
			log.Printf("[notify][ERROR] order-completed notification failed: %v", err)
		}
	}
	if email := userEmail(o.SellerID); email != "" {
		if err := EnqueueOrderCompleted(o.ID, in.ID, o.BuyerID, o.SellerID, email, amount); err != nil {
			log.Printf("[notify][ERROR] order-completed email enqueue failed: %v", err)
		}
	}
}
