// Package verification implements the two-sided delivery confirmation
// handshake: each party submits the code the counterparty handed them
// at the physical handoff, and the order completes only once both
// sides verified.
package verification

import (
	"context"
	"errors"
	"time"

	"tradepost/internal/negotiation"
	"tradepost/internal/order"
)

// Result is what a code submission returns to the client.
type Result struct {
	IntentID  string `json:"intent_id"`
	Verified  bool   `json:"verified"`
	Completed bool   `json:"is_completed"`
	CanReview bool   `json:"can_review"`
	ReviewURL string `json:"review_url,omitempty"`
	Message   string `json:"message"`
}

// Service runs the handshake over the shared negotiation store so code
// checks and the completion transition happen inside the same
// serialized update as every other protocol mutation.
type Service struct {
	store    negotiation.Store
	notifier negotiation.Notifier
	now      func() time.Time
}

// NewService wires the handshake.
func NewService(store negotiation.Store, notifier negotiation.Notifier) *Service {
	if notifier == nil {
		notifier = negotiation.NopNotifier{}
	}
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// WithClock overrides the service clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitCode checks a delivery code for submitter. A buyer's
// submission is compared against the seller's code and vice versa; a
// party can never validate their own code. Matching flags are
// monotonic: resubmitting after success is a no-op success, and any
// submission after completion returns the completed result unchanged.
func (s *Service) SubmitCode(ctx context.Context, orderID, submitterID, code string) (*Result, error) {
	code = order.NormalizeCode(code)
	if len(code) != order.CodeLength {
		return nil, negotiation.E(negotiation.CodeInvalidCode, "the verification code must be 6 characters")
	}

	var (
		res          Result
		intent       negotiation.Intent
		completedOrd order.Order
		justDone     bool
	)
	now := s.now()
	err := s.store.UpdateIntentByOrder(ctx, orderID, func(a *negotiation.Aggregate) error {
		if a.Order == nil || a.Verification == nil {
			return negotiation.ErrNotFound
		}
		if !a.Intent.Participant(submitterID) {
			return negotiation.E(negotiation.CodeNotParticipant, "you are not part of this order")
		}
		if !a.Order.Status.PaidOrLater() {
			return negotiation.E(negotiation.CodeOrderState, "the order has not been paid yet")
		}

		v := a.Verification
		if v.IsCompleted() {
			res = s.completedResult(a)
			return nil
		}

		isBuyer := submitterID == a.Intent.BuyerID
		expected := v.SellerCode // buyer verifies what the seller gave them
		if !isBuyer {
			expected = v.BuyerCode
		}
		if code != order.NormalizeCode(expected) {
			return negotiation.E(negotiation.CodeInvalidCode, "invalid verification code")
		}

		if isBuyer {
			if !v.BuyerCodeVerified {
				v.BuyerCodeVerified = true
				v.BuyerVerifiedAt = &now
			}
		} else {
			if !v.SellerCodeVerified {
				v.SellerCodeVerified = true
				v.SellerVerifiedAt = &now
				// Seller confirming the handoff moves a paid order
				// into the delivery phase.
				if a.Order.Status == order.StatusPaid {
					a.Order.Status = order.StatusPendingDelivery
				}
			}
		}

		if v.IsCompleted() {
			v.CompletedAt = &now
			a.Order.Status = order.StatusCompleted
			a.Order.CompletedAt = &now
			justDone = true
			intent = a.Intent
			completedOrd = *a.Order
			res = s.completedResult(a)
			return nil
		}

		res = Result{
			IntentID: a.Intent.ID,
			Verified: true,
			Message:  "code verified, waiting for the other party",
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, negotiation.ErrNotFound) {
			return nil, negotiation.E(negotiation.CodeNotFound, "order not found")
		}
		return nil, err
	}

	if justDone {
		s.notifier.OrderCompleted(ctx, intent, completedOrd)
	}
	return &res, nil
}

func (s *Service) completedResult(a *negotiation.Aggregate) Result {
	return Result{
		IntentID:  a.Intent.ID,
		Verified:  true,
		Completed: true,
		CanReview: true,
		ReviewURL: negotiation.ReviewURL(a.Order.ID),
		Message:   "delivery confirmed, the transaction is complete",
	}
}
