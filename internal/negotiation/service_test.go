package negotiation_test

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
)

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
	otherID  = "rando-9"
	listID   = "listing-1"
)

func newFixture(t *testing.T) (*negotiation.Service, *memstore.Store, *time.Time) {
	t.Helper()
	st := memstore.New()
	st.AddListing(negotiation.Listing{
		ID:       listID,
		SellerID: sellerID,
		Title:    "vintage road bike",
		Price:    decimal.NewFromInt(20000),
	})
	st.AddUser(buyerID, "Ana")
	st.AddUser(sellerID, "Luis")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	svc := negotiation.NewService(st, nil, order.DefaultCommissionRates(),
		negotiation.WithClock(func() time.Time { return *clock }))
	return svc, st, clock
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.IntentPending, in.Status)
	assert.Equal(t, sellerID, in.SellerID)
	assert.True(t, decimal.NewFromInt(20000).Equal(in.InitialPrice))
	require.NotNil(t, in.ExpiresAt)
	assert.Equal(t, clock.Add(7*24*time.Hour), *in.ExpiresAt)

	// A second attempt by the same buyer reuses the active thread.
	again, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, again.ID)
}

func TestCreateIntentSelfPurchase(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.CreateIntent(context.Background(), listID, sellerID)
	require.Error(t, err)
	assert.Equal(t, negotiation.CodeSelfPurchase, negotiation.CodeOf(err))
}

func TestCreateIntentReactivatesTerminated(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	require.NoError(t, svc.CancelIntent(ctx, in.ID, buyerID))

	*clock = clock.Add(time.Hour)
	back, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, back.ID, "terminated intent is reused, not duplicated")
	assert.Equal(t, negotiation.IntentPending, back.Status)
	assert.Nil(t, back.NegotiatedPrice)
	assert.Nil(t, back.AgreedAt)
}

func TestSubmitOffer(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	off, err := svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "would you take 15k?")
	require.NoError(t, err)
	assert.Equal(t, negotiation.OfferPending, off.Status)

	snap, err := svc.Snapshot(ctx, in.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.IntentNegotiating, snap.Status)
	require.NotNil(t, snap.NegotiatedPrice)
	assert.True(t, decimal.NewFromInt(15000).Equal(*snap.NegotiatedPrice))
	require.Len(t, snap.Offers, 1)
	assert.Equal(t, "Ana", snap.Offers[0].ProposerName)
}

func TestSubmitOfferValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.Zero, "")
	assert.Equal(t, negotiation.CodeInvalidPrice, negotiation.CodeOf(err))

	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(-5), "")
	assert.Equal(t, negotiation.CodeInvalidPrice, negotiation.CodeOf(err))

	_, err = svc.SubmitOffer(ctx, in.ID, otherID, decimal.NewFromInt(100), "")
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	// Past the expiry window offers are refused.
	*clock = clock.Add(7*24*time.Hour + time.Minute)
	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(100), "")
	assert.Equal(t, negotiation.CodeIntentClosed, negotiation.CodeOf(err))
}

func TestRespondToOfferSelfResponse(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	off, err := svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "")
	require.NoError(t, err)

	_, err = svc.RespondToOffer(ctx, off.ID, buyerID, negotiation.DecisionAccept)
	assert.Equal(t, negotiation.CodeSelfResponse, negotiation.CodeOf(err))
}

func TestRespondToOfferOnlyLatest(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	first, err := svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "")
	require.NoError(t, err)
	_, err = svc.SubmitOffer(ctx, in.ID, sellerID, decimal.NewFromInt(18000), "")
	require.NoError(t, err)

	// The superseded entry is history, not actionable.
	_, err = svc.RespondToOffer(ctx, first.ID, sellerID, negotiation.DecisionReject)
	assert.Equal(t, negotiation.CodeNotLatestOffer, negotiation.CodeOf(err))
}

// The canonical haggle: buyer opens at 15000, seller rejects and
// counters at 18000, buyer accepts, order spawns at 18000.
func TestCounterOfferFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	first, err := svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "15k cash today")
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, first.ID, sellerID, negotiation.DecisionReject)
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, in.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.IntentNegotiating, snap.Status)
	// The rejected figure stays visible; it is not binding.
	require.NotNil(t, snap.NegotiatedPrice)
	assert.True(t, decimal.NewFromInt(15000).Equal(*snap.NegotiatedPrice))
	assert.False(t, snap.CanAcceptFinalPrice)

	counter, err := svc.SubmitOffer(ctx, in.ID, sellerID, decimal.NewFromInt(18000), "18k and it is yours")
	require.NoError(t, err)
	agreed, err := svc.RespondToOffer(ctx, counter.ID, buyerID, negotiation.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, negotiation.IntentAgreed, agreed.Status)
	require.NotNil(t, agreed.NegotiatedPrice)
	assert.True(t, decimal.NewFromInt(18000).Equal(*agreed.NegotiatedPrice))
	require.NotNil(t, agreed.AgreedAt)

	snap, err = svc.Snapshot(ctx, in.ID, buyerID)
	require.NoError(t, err)
	assert.True(t, snap.CanAcceptFinalPrice)
	require.Len(t, snap.Offers, 2)
	assert.Equal(t, negotiation.OfferRejected, snap.Offers[0].Status)
	assert.Equal(t, negotiation.OfferAccepted, snap.Offers[1].Status)

	ord, err := svc.AcceptFinalPrice(ctx, in.ID, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(18000).Equal(ord.FinalPrice))
	assert.Equal(t, order.StatusPendingPayment, ord.Status)
	assert.True(t, decimal.NewFromFloat(1062).Equal(ord.BuyerCommission))
	assert.True(t, decimal.NewFromFloat(1782).Equal(ord.SellerCommission))
	assert.True(t, decimal.NewFromFloat(19062).Equal(ord.BuyerTotal))
	assert.True(t, decimal.NewFromFloat(16218).Equal(ord.SellerNet))
}

func TestAcceptSupersedesEarlierPending(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(14000), "")
	require.NoError(t, err)
	latest, err := svc.SubmitOffer(ctx, in.ID, sellerID, decimal.NewFromInt(17000), "")
	require.NoError(t, err)

	_, err = svc.RespondToOffer(ctx, latest.ID, buyerID, negotiation.DecisionAccept)
	require.NoError(t, err)

	agg, err := st.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, agg.Offers, 2)
	assert.Equal(t, negotiation.OfferRejected, agg.Offers[0].Status)
	assert.Equal(t, negotiation.OfferAccepted, agg.Offers[1].Status)
}

func TestAcceptFinalPrice(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))

	// Seller cannot trigger the order.
	_, err := svc.AcceptFinalPrice(ctx, in, sellerID, decimal.NewFromInt(18000))
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	// A stale price is rejected.
	_, err = svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(15000))
	assert.Equal(t, negotiation.CodePriceMismatch, negotiation.CodeOf(err))

	ord, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)

	// Retrying returns the same order instead of minting a second one.
	again, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)
	assert.Equal(t, ord.ID, again.ID)

	agg, err := st.GetIntent(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, agg.Verification)
	assert.Len(t, agg.Verification.BuyerCode, order.CodeLength)
	assert.Len(t, agg.Verification.SellerCode, order.CodeLength)
	assert.NotEqual(t, agg.Verification.BuyerCode, agg.Verification.SellerCode)
	assert.False(t, agg.CanAcceptFinalPrice(), "flag drops once the order exists")
}

func TestAcceptFinalPriceRequiresAgreement(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(15000), "")
	require.NoError(t, err)

	_, err = svc.AcceptFinalPrice(ctx, in.ID, buyerID, decimal.NewFromInt(15000))
	assert.Equal(t, negotiation.CodeNotAgreed, negotiation.CodeOf(err))
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))
	ord, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// Gateway retries are a no-op.
	again, err := svc.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, again.Status)
	assert.Equal(t, paid.PaidAt, again.PaidAt)
}

func TestRejectIntentSellerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	err = svc.RejectIntent(ctx, in.ID, buyerID)
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	require.NoError(t, svc.RejectIntent(ctx, in.ID, sellerID))

	// A rejected thread takes no more offers.
	_, err = svc.SubmitOffer(ctx, in.ID, buyerID, decimal.NewFromInt(100), "")
	assert.Equal(t, negotiation.CodeIntentClosed, negotiation.CodeOf(err))
}

func TestSnapshotAccess(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	_, err = svc.Snapshot(ctx, in.ID, otherID)
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	byParties, err := svc.SnapshotByParties(ctx, listID, buyerID, sellerID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, byParties.IntentID)
}

func TestSnapshotMasksCounterpartCode(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))
	_, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)

	agg, err := st.GetIntent(ctx, in)
	require.NoError(t, err)

	buyerSnap, err := svc.Snapshot(ctx, in, buyerID)
	require.NoError(t, err)
	require.NotNil(t, buyerSnap.Verification)
	assert.Equal(t, agg.Verification.BuyerCode, buyerSnap.Verification.OwnCode)

	sellerSnap, err := svc.Snapshot(ctx, in, sellerID)
	require.NoError(t, err)
	require.NotNil(t, sellerSnap.Verification)
	assert.Equal(t, agg.Verification.SellerCode, sellerSnap.Verification.OwnCode)
	assert.NotEqual(t, buyerSnap.Verification.OwnCode, sellerSnap.Verification.OwnCode)
}

// blindStore hides the existing thread from the pre-insert lookup,
// reproducing two creates racing past each other's find.
type blindStore struct {
	negotiation.Store
	misses int
}

func (s *blindStore) FindIntentByBuyer(ctx context.Context, productID, buyerID string) (*negotiation.Aggregate, error) {
	if s.misses > 0 {
		s.misses--
		return nil, negotiation.ErrNotFound
	}
	return s.Store.FindIntentByBuyer(ctx, productID, buyerID)
}

func TestCreateIntentInsertConflictReturnsExisting(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newFixture(t)

	first, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)

	// A second live intent for the same (product, buyer) is refused at
	// the store.
	err = st.InsertIntent(ctx, &negotiation.Intent{
		ID:        "dup-intent",
		ProductID: listID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Status:    negotiation.IntentPending,
		CreatedAt: *clock,
		UpdatedAt: *clock,
	})
	require.ErrorIs(t, err, negotiation.ErrDuplicateIntent)

	// A create whose lookup missed the winner lands on the conflict and
	// comes back with the winner's thread instead of an error.
	racing := negotiation.NewService(&blindStore{Store: st, misses: 1}, nil,
		order.DefaultCommissionRates(),
		negotiation.WithClock(func() time.Time { return *clock }))
	in, err := racing.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, in.ID)
}

func TestBeginPayment(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	in := agreeAt(ctx, t, svc, decimal.NewFromInt(18000))
	ord, err := svc.AcceptFinalPrice(ctx, in, buyerID, decimal.NewFromInt(18000))
	require.NoError(t, err)

	_, err = svc.BeginPayment(ctx, ord.ID, sellerID)
	require.Error(t, err)
	assert.Equal(t, negotiation.CodeNotParticipant, negotiation.CodeOf(err))

	got, err := svc.BeginPayment(ctx, ord.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, ord.ID, got.ID)
	assert.Equal(t, order.StatusPendingPayment, got.Status)

	_, err = svc.MarkPaid(ctx, ord.ID)
	require.NoError(t, err)

	_, err = svc.BeginPayment(ctx, ord.ID, buyerID)
	require.Error(t, err)
	assert.Equal(t, negotiation.CodeOrderState, negotiation.CodeOf(err))

	_, err = svc.BeginPayment(ctx, "no-such-order", buyerID)
	require.Error(t, err)
	assert.Equal(t, negotiation.CodeNotFound, negotiation.CodeOf(err))
}

// agreeAt drives a fresh intent to agreed at the given price and
// returns the intent id.
func agreeAt(ctx context.Context, t *testing.T, svc *negotiation.Service, price decimal.Decimal) string {
	t.Helper()
	in, err := svc.CreateIntent(ctx, listID, buyerID)
	require.NoError(t, err)
	off, err := svc.SubmitOffer(ctx, in.ID, sellerID, price, "")
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, off.ID, buyerID, negotiation.DecisionAccept)
	require.NoError(t, err)
	return in.ID
}
