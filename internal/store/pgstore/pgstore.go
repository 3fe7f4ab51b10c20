// Package pgstore persists the negotiation protocol in Postgres. Every
// update locks the intent row FOR UPDATE for the duration of the
// read-modify-write, which is what serializes racing buyer/seller
// mutations on the same thread.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tradepost/internal/negotiation"
	"tradepost/internal/order"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UpdateIntent(ctx context.Context, intentID string, fn func(*negotiation.Aggregate) error) error {
	return s.update(ctx, `SELECT id FROM purchase_intents WHERE id = $1 FOR UPDATE`, intentID, fn)
}

func (s *Store) UpdateIntentByOffer(ctx context.Context, offerID string, fn func(*negotiation.Aggregate) error) error {
	return s.update(ctx, `
		SELECT pi.id FROM purchase_intents pi
		JOIN negotiations n ON n.intent_id = pi.id
		WHERE n.id = $1 FOR UPDATE OF pi`, offerID, fn)
}

func (s *Store) UpdateIntentByOrder(ctx context.Context, orderID string, fn func(*negotiation.Aggregate) error) error {
	return s.update(ctx, `
		SELECT pi.id FROM purchase_intents pi
		JOIN c2c_orders o ON o.intent_id = pi.id
		WHERE o.id = $1 FOR UPDATE OF pi`, orderID, fn)
}

func (s *Store) update(ctx context.Context, lockQuery, key string, fn func(*negotiation.Aggregate) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var intentID string
	if err := tx.QueryRow(ctx, lockQuery, key).Scan(&intentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return negotiation.ErrNotFound
		}
		return fmt.Errorf("lock intent: %w", err)
	}

	agg, err := loadAggregate(ctx, tx, intentID)
	if err != nil {
		return err
	}

	hadOrder := agg.Order != nil
	if err := fn(agg); err != nil {
		return err
	}

	if err := writeAggregate(ctx, tx, agg, hadOrder); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetIntent(ctx context.Context, intentID string) (*negotiation.Aggregate, error) {
	return s.loadByQuery(ctx, `SELECT id FROM purchase_intents WHERE id = $1`, intentID)
}

func (s *Store) FindIntent(ctx context.Context, productID, buyerID, sellerID string) (*negotiation.Aggregate, error) {
	var intentID string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM purchase_intents
		WHERE product_id = $1 AND buyer_id = $2 AND seller_id = $3
		  AND status IN ('pending', 'negotiating', 'agreed')
		ORDER BY CASE status WHEN 'agreed' THEN 1 ELSE 0 END, created_at DESC
		LIMIT 1`,
		productID, buyerID, sellerID,
	).Scan(&intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("find intent: %w", err)
	}
	return s.loadByQuery(ctx, `SELECT id FROM purchase_intents WHERE id = $1`, intentID)
}

func (s *Store) FindIntentByBuyer(ctx context.Context, productID, buyerID string) (*negotiation.Aggregate, error) {
	var intentID string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM purchase_intents
		WHERE product_id = $1 AND buyer_id = $2
		ORDER BY created_at DESC LIMIT 1`,
		productID, buyerID,
	).Scan(&intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("find intent by buyer: %w", err)
	}
	return s.loadByQuery(ctx, `SELECT id FROM purchase_intents WHERE id = $1`, intentID)
}

func (s *Store) loadByQuery(ctx context.Context, query, key string) (*negotiation.Aggregate, error) {
	var intentID string
	if err := s.pool.QueryRow(ctx, query, key).Scan(&intentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("load intent: %w", err)
	}
	return loadAggregate(ctx, s.pool, intentID)
}

func (s *Store) InsertIntent(ctx context.Context, in *negotiation.Intent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO purchase_intents
			(id, product_id, buyer_id, seller_id, status, initial_price, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.ProductID, in.BuyerID, in.SellerID, string(in.Status),
		in.InitialPrice, in.CreatedAt, in.UpdatedAt, in.ExpiresAt,
	)
	if err != nil {
		// uniq_intents_live rejects a second live intent for the
		// same (product, buyer) when two creates race.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return negotiation.ErrDuplicateIntent
		}
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (s *Store) Listing(ctx context.Context, listingID string) (*negotiation.Listing, error) {
	var l negotiation.Listing
	err := s.pool.QueryRow(ctx,
		`SELECT id, seller_id, title, price FROM listings WHERE id = $1`,
		listingID,
	).Scan(&l.ID, &l.SellerID, &l.Title, &l.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}
	return &l, nil
}

func (s *Store) UserName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", negotiation.ErrNotFound
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	return name, nil
}

// querier covers both pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadAggregate(ctx context.Context, q querier, intentID string) (*negotiation.Aggregate, error) {
	agg := &negotiation.Aggregate{}

	var (
		status          string
		negotiatedPrice decimal.NullDecimal
		finalPrice      decimal.NullDecimal
	)
	err := q.QueryRow(ctx, `
		SELECT id, product_id, buyer_id, seller_id, status, initial_price,
		       negotiated_price, final_price, created_at, updated_at, agreed_at, expires_at
		FROM purchase_intents WHERE id = $1`, intentID,
	).Scan(
		&agg.Intent.ID, &agg.Intent.ProductID, &agg.Intent.BuyerID, &agg.Intent.SellerID,
		&status, &agg.Intent.InitialPrice, &negotiatedPrice, &finalPrice,
		&agg.Intent.CreatedAt, &agg.Intent.UpdatedAt, &agg.Intent.AgreedAt, &agg.Intent.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("load intent row: %w", err)
	}
	agg.Intent.Status, err = negotiation.ParseIntentStatus(status)
	if err != nil {
		return nil, err
	}
	if negotiatedPrice.Valid {
		agg.Intent.NegotiatedPrice = &negotiatedPrice.Decimal
	}
	if finalPrice.Valid {
		agg.Intent.FinalPrice = &finalPrice.Decimal
	}

	rows, err := q.Query(ctx, `
		SELECT id, intent_id, proposer_id, proposed_price, message, status, created_at, responded_at
		FROM negotiations WHERE intent_id = $1 ORDER BY created_at ASC, id ASC`, intentID)
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			o  negotiation.Offer
			st string
		)
		if err := rows.Scan(&o.ID, &o.IntentID, &o.ProposerID, &o.Price, &o.Message, &st, &o.CreatedAt, &o.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if o.Status, err = negotiation.ParseOfferStatus(st); err != nil {
			return nil, err
		}
		agg.Offers = append(agg.Offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}

	var (
		o       order.Order
		ordSt   string
		scanErr = q.QueryRow(ctx, `
			SELECT id, intent_id, buyer_id, seller_id, final_price,
			       buyer_commission, seller_commission, platform_commission,
			       seller_net, buyer_total, status, created_at, paid_at, completed_at
			FROM c2c_orders WHERE intent_id = $1`, intentID,
		).Scan(
			&o.ID, &o.IntentID, &o.BuyerID, &o.SellerID, &o.FinalPrice,
			&o.BuyerCommission, &o.SellerCommission, &o.PlatformCommission,
			&o.SellerNet, &o.BuyerTotal, &ordSt, &o.CreatedAt, &o.PaidAt, &o.CompletedAt,
		)
	)
	switch {
	case scanErr == nil:
		if o.Status, err = order.ParseStatus(ordSt); err != nil {
			return nil, err
		}
		agg.Order = &o

		var v order.VerificationRecord
		verr := q.QueryRow(ctx, `
			SELECT order_id, buyer_code, seller_code, buyer_code_verified, seller_code_verified,
			       buyer_code_verified_at, seller_code_verified_at, created_at, completed_at
			FROM delivery_verifications WHERE order_id = $1`, o.ID,
		).Scan(
			&v.OrderID, &v.BuyerCode, &v.SellerCode, &v.BuyerCodeVerified, &v.SellerCodeVerified,
			&v.BuyerVerifiedAt, &v.SellerVerifiedAt, &v.CreatedAt, &v.CompletedAt,
		)
		if verr != nil && !errors.Is(verr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load verification: %w", verr)
		}
		if verr == nil {
			agg.Verification = &v
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		// no order yet
	default:
		return nil, fmt.Errorf("load order: %w", scanErr)
	}

	return agg, nil
}

func writeAggregate(ctx context.Context, tx pgx.Tx, agg *negotiation.Aggregate, hadOrder bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE purchase_intents
		SET status = $2, initial_price = $3, negotiated_price = $4, final_price = $5,
		    updated_at = $6, agreed_at = $7, expires_at = $8
		WHERE id = $1`,
		agg.Intent.ID, string(agg.Intent.Status), agg.Intent.InitialPrice,
		nullDecimal(agg.Intent.NegotiatedPrice), nullDecimal(agg.Intent.FinalPrice),
		agg.Intent.UpdatedAt, agg.Intent.AgreedAt, agg.Intent.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("write intent: %w", err)
	}

	for i := range agg.Offers {
		o := &agg.Offers[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO negotiations (id, intent_id, proposer_id, proposed_price, message, status, created_at, responded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, responded_at = EXCLUDED.responded_at`,
			o.ID, o.IntentID, o.ProposerID, o.Price, o.Message, string(o.Status), o.CreatedAt, o.RespondedAt,
		)
		if err != nil {
			return fmt.Errorf("write offer: %w", err)
		}
	}

	if agg.Order != nil {
		o := agg.Order
		if hadOrder {
			_, err = tx.Exec(ctx,
				`UPDATE c2c_orders SET status = $2, paid_at = $3, completed_at = $4 WHERE id = $1`,
				o.ID, string(o.Status), o.PaidAt, o.CompletedAt,
			)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO c2c_orders
					(id, intent_id, buyer_id, seller_id, final_price, buyer_commission,
					 seller_commission, platform_commission, seller_net, buyer_total,
					 status, created_at, paid_at, completed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				o.ID, o.IntentID, o.BuyerID, o.SellerID, o.FinalPrice, o.BuyerCommission,
				o.SellerCommission, o.PlatformCommission, o.SellerNet, o.BuyerTotal,
				string(o.Status), o.CreatedAt, o.PaidAt, o.CompletedAt,
			)
		}
		if err != nil {
			return fmt.Errorf("write order: %w", err)
		}
	}

	if agg.Verification != nil {
		v := agg.Verification
		_, err := tx.Exec(ctx, `
			INSERT INTO delivery_verifications
				(order_id, buyer_code, seller_code, buyer_code_verified, seller_code_verified,
				 buyer_code_verified_at, seller_code_verified_at, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id) DO UPDATE SET
				buyer_code_verified = EXCLUDED.buyer_code_verified,
				seller_code_verified = EXCLUDED.seller_code_verified,
				buyer_code_verified_at = EXCLUDED.buyer_code_verified_at,
				seller_code_verified_at = EXCLUDED.seller_code_verified_at,
				completed_at = EXCLUDED.completed_at`,
			v.OrderID, v.BuyerCode, v.SellerCode, v.BuyerCodeVerified, v.SellerCodeVerified,
			v.BuyerVerifiedAt, v.SellerVerifiedAt, v.CreatedAt, v.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("write verification: %w", err)
		}
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
