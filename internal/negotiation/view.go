package negotiation

import "tradepost/internal/order"

// Role is the viewer's side of the thread.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// ViewState is everything a client needs to render one snapshot. It is
// derived fresh from the snapshot on every poll tick and never cached
// or patched, so the UI cannot drift from the authoritative state.
type ViewState struct {
	// ComposerOpen governs the free-text message input.
	ComposerOpen bool
	// ComposerHint explains a closed composer to the user.
	ComposerHint string
	// OfferInputOpen governs the price proposal form.
	OfferInputOpen bool
	// ActionableOfferID is the one offer the viewer may accept or
	// reject right now, empty if none.
	ActionableOfferID string
	// ShowAcceptFinalPrice shows the buyer's finalize button.
	ShowAcceptFinalPrice bool
	// ShowPayButton shows the buyer's pay button for a created order.
	ShowPayButton bool
	// ShowVerification shows the code entry panel.
	ShowVerification bool
	// ShowReview links to the counterparty review form.
	ShowReview bool
	ReviewURL  string
}

// DeriveViewState computes the UI state for one snapshot and viewer
// role. The lock rules mirror the thread policy: once a price is
// agreed and the order is unpaid everything is read-only; after
// payment the composer re-opens for arranging the handoff while the
// negotiation form stays closed; completion locks the thread for good.
func DeriveViewState(snap *Snapshot, role Role) ViewState {
	vs := ViewState{}
	if snap == nil {
		return vs
	}

	viewerID := snap.BuyerID
	if role == RoleSeller {
		viewerID = snap.SellerID
	}

	paid := snap.OrderStatus != nil && snap.OrderStatus.PaidOrLater()
	completed := snap.OrderStatus != nil && *snap.OrderStatus == order.StatusCompleted

	open, hint := ThreadState(snap.Status, snap.OrderStatus)
	vs.ComposerOpen = open
	vs.ComposerHint = hint

	vs.OfferInputOpen = snap.Status.Open()

	if snap.Status.Open() {
		if last := len(snap.Offers) - 1; last >= 0 {
			o := snap.Offers[last]
			if o.Status == OfferPending && o.ProposerID != viewerID {
				vs.ActionableOfferID = o.ID
			}
		}
	}

	if role == RoleBuyer {
		vs.ShowAcceptFinalPrice = snap.CanAcceptFinalPrice && snap.NegotiatedPrice != nil
		vs.ShowPayButton = snap.OrderID != nil && snap.OrderStatus != nil &&
			*snap.OrderStatus == order.StatusPendingPayment
	}

	vs.ShowVerification = paid && !completed
	if snap.CanReview {
		vs.ShowReview = true
		vs.ReviewURL = snap.ReviewURL
	}
	return vs
}

// ThreadState is the server-enforced composer policy: (open, hint).
// Agreed but unpaid locks messaging until the payment lands; a paid,
// running order re-opens it; a completed order locks it permanently.
func ThreadState(status IntentStatus, orderStatus *order.Status) (bool, string) {
	if orderStatus != nil {
		switch {
		case *orderStatus == order.StatusCompleted:
			return false, "transaction completed, this thread is closed"
		case orderStatus.PaidOrLater():
			return true, ""
		default:
			return false, "awaiting payment"
		}
	}
	switch status {
	case IntentAgreed:
		return false, "awaiting payment"
	case IntentPending, IntentNegotiating:
		return true, ""
	}
	return false, "this negotiation is closed"
}
