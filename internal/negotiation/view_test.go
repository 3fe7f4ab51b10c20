package negotiation_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/negotiation"
	"tradepost/internal/order"
)

func TestDeriveViewStateActionableOffer(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	off, err := svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "")
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, in.ID, sellerID)
	require.NoError(t, err)

	// Only the counterparty sees the pending offer as actionable.
	sellerView := negotiation.DeriveViewState(snap, negotiation.RoleSeller)
	assert.Equal(t, off.ID, sellerView.ActionableOfferID)
	assert.True(t, sellerView.ComposerOpen)
	assert.True(t, sellerView.OfferInputOpen)

	buyerView := negotiation.DeriveViewState(snap, negotiation.RoleBuyer)
	assert.Empty(t, buyerView.ActionableOfferID)
	assert.False(t, buyerView.ShowAcceptFinalPrice)
}

func TestDeriveViewStateAgreedLocksThread(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))
	snap, err := svc.Snapshot(ctx, in, buyerID)
	require.NoError(t, err)

	buyerView := negotiation.DeriveViewState(snap, negotiation.RoleBuyer)
	assert.False(t, buyerView.ComposerOpen)
	assert.Equal(t, "awaiting payment", buyerView.ComposerHint)
	assert.False(t, buyerView.OfferInputOpen)
	assert.True(t, buyerView.ShowAcceptFinalPrice)
	assert.Empty(t, buyerView.ActionableOfferID, "accepted offer is no longer actionable")

	sellerView := negotiation.DeriveViewState(snap, negotiation.RoleSeller)
	assert.False(t, sellerView.ShowAcceptFinalPrice, "finalizing is buyer-only")
}

func TestDeriveViewStatePaymentAndDelivery(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))
	ord, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, in, buyerID)
	require.NoError(t, err)
	view := negotiation.DeriveViewState(snap, negotiation.RoleBuyer)
	assert.True(t, view.ShowPayButton)
	assert.False(t, view.ShowVerification)
	assert.False(t, view.ComposerOpen)

	_, err = svc.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)

	snap, err = svc.Snapshot(ctx, in, buyerID)
	require.NoError(t, err)
	view = negotiation.DeriveViewState(snap, negotiation.RoleBuyer)
	assert.False(t, view.ShowPayButton)
	assert.True(t, view.ShowVerification)
	assert.True(t, view.ComposerOpen, "paid order re-opens messaging for the handoff")
	assert.False(t, view.ShowAcceptFinalPrice)
}

func TestThreadState(t *testing.T) {
	completed := order.StatusCompleted
	paid := order.StatusPaid
	pendingPay := order.StatusPendingPayment

	open, hint := negotiation.ThreadState(negotiation.IntentNegotiating, nil)
	assert.True(t, open)
	assert.Empty(t, hint)

	open, hint = negotiation.ThreadState(negotiation.IntentAgreed, nil)
	assert.False(t, open)
	assert.Equal(t, "awaiting payment", hint)

	open, _ = negotiation.ThreadState(negotiation.IntentAgreed, &pendingPay)
	assert.False(t, open)

	open, hint = negotiation.ThreadState(negotiation.IntentAgreed, &paid)
	assert.True(t, open)
	assert.Empty(t, hint)

	open, hint = negotiation.ThreadState(negotiation.IntentAgreed, &completed)
	assert.False(t, open)
	assert.NotEmpty(t, hint)

	open, _ = negotiation.ThreadState(negotiation.IntentCancelled, nil)
	assert.False(t, open)
}
