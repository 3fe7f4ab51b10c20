package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/negotiation"
	"tradepost/internal/order"
	"tradepost/internal/store/memstore"
	"tradepost/internal/verification"
)

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
	listID   = "listing-1"
)

type fixture struct {
	store  *memstore.Store
	verify *verification.Service
	order  *order.Order
	codes  order.VerificationRecord
}

// newPaidOrder drives a negotiation to a paid order and returns the
// handshake codes straight from the store.
func newPaidOrder(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	st.AddListing(negotiation.Listing{
		ID: listID, SellerID: sellerID, Title: "camera", Price: decimal.NewFromInt(9000),
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	neg := negotiation.NewService(st, nil, order.DefaultCommissionRates(), negotiation.WithClock(clock))

	in, err := neg.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	off, err := neg.SubmitOffer(ctx, in.ID, sellerID, decimal.NewFromInt(8500), "")
	require.NoError(t, err)
	_, err = neg.RespondToOffer(ctx, off.ID, buyerID, negotiation.DecisionAccept)
	require.NoError(t, err)
	ord, err := neg.AcceptFinalPrice(ctx, in.ID, buyerID, decimal.NewFromInt(8500))
	require.NoError(t, err)
	_, err = neg.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)

	agg, err := st.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, agg.Verification)

	return &fixture{
		store:  st,
		verify: verification.NewService(st, nil).WithClock(clock),
		order:  ord,
		codes:  *agg.Verification,
	}
}

func TestHandshakeBuyerThenSeller(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	// Buyer enters the code the seller handed over.
	res, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, f.codes.SellerCode)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Completed)

	agg, err := f.store.GetIntent(ctx, f.order.IntentID)
	require.NoError(t, err)
	assert.True(t, agg.Verification.BuyerCodeVerified)
	assert.False(t, agg.Verification.SellerCodeVerified)
	assert.Equal(t, order.StatusPaid, agg.Order.Status)

	// Seller closes the loop; the order completes.
	res, err = f.verify.SubmitCode(ctx, f.order.ID, sellerID, f.codes.BuyerCode)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.True(t, res.Completed)
	assert.True(t, res.CanReview)
	assert.Equal(t, negotiation.ReviewURL(f.order.ID), res.ReviewURL)

	agg, err = f.store.GetIntent(ctx, f.order.IntentID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, agg.Order.Status)
	require.NotNil(t, agg.Order.CompletedAt)
	require.NotNil(t, agg.Verification.CompletedAt)
}

func TestSellerFirstMovesToPendingDelivery(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	res, err := f.verify.SubmitCode(ctx, f.order.ID, sellerID, f.codes.BuyerCode)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Completed)

	agg, err := f.store.GetIntent(ctx, f.order.IntentID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingDelivery, agg.Order.Status)
}

func TestOwnCodeIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	// Submitting the code you hold yourself proves nothing.
	_, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, f.codes.BuyerCode)
	assert.Equal(t, negotiation.CodeInvalidCode, negotiation.CodeOf(err))

	_, err = f.verify.SubmitCode(ctx, f.order.ID, sellerID, f.codes.SellerCode)
	assert.Equal(t, negotiation.CodeInvalidCode, negotiation.CodeOf(err))
}

func TestSubmitCodeValidation(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	_, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, "abc")
	assert.Equal(t, negotiation.CodeInvalidCode, negotiation.CodeOf(err))

	_, err = f.verify.SubmitCode(ctx, f.order.ID, "stranger", f.codes.SellerCode)
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	_, err = f.verify.SubmitCode(ctx, "no-such-order", buyerID, f.codes.SellerCode)
	assert.Equal(t, negotiation.CodeNotFound, negotiation.CodeOf(err))
}

func TestSubmitCodeRequiresPayment(t *testing.T) {
	ctx := context.Background()

	st := memstore.New()
	st.AddListing(negotiation.Listing{
		ID: listID, SellerID: sellerID, Title: "camera", Price: decimal.NewFromInt(9000),
	})
	neg := negotiation.NewService(st, nil, order.DefaultCommissionRates())
	in, err := neg.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	off, err := neg.SubmitOffer(ctx, in.ID, sellerID, decimal.NewFromInt(8500), "")
	require.NoError(t, err)
	_, err = neg.RespondToOffer(ctx, off.ID, buyerID, negotiation.DecisionAccept)
	require.NoError(t, err)
	ord, err := neg.AcceptFinalPrice(ctx, in.ID, buyerID, decimal.NewFromInt(8500))
	require.NoError(t, err)

	agg, err := st.GetIntent(ctx, in.ID)
	require.NoError(t, err)

	v := verification.NewService(st, nil)
	_, err = v.SubmitCode(ctx, ord.ID, buyerID, agg.Verification.SellerCode)
	assert.Equal(t, negotiation.CodeOrderState, negotiation.CodeOf(err))
}

func TestResubmissionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	_, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, f.codes.SellerCode)
	require.NoError(t, err)

	// Same side again before completion: still a success, no state change.
	res, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, f.codes.SellerCode)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.False(t, res.Completed)

	_, err = f.verify.SubmitCode(ctx, f.order.ID, sellerID, f.codes.BuyerCode)
	require.NoError(t, err)

	// After completion any submission reports the completed result.
	res, err = f.verify.SubmitCode(ctx, f.order.ID, sellerID, f.codes.BuyerCode)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.True(t, res.CanReview)
}

func TestCodeNormalization(t *testing.T) {
	ctx := context.Background()
	f := newPaidOrder(t)

	// Lowercase and padding are tolerated on entry.
	messy := "  " + lower(f.codes.SellerCode) + " "
	res, err := f.verify.SubmitCode(ctx, f.order.ID, buyerID, messy)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
