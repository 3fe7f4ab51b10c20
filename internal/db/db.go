package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and makes sure the schema the handlers
// rely on exists. Statements are idempotent so restarts are safe.
func Init(databaseURL string) {
	var err error
	Conn, err = pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	ensureUsersTable()
	ensureListingsTable()
	ensureIntentTables()
	ensureOrderTables()
	ensurePaymentsTable()
	ensureMessagesTable()
	ensureReviewsTable()
	ensureNotificationsTable()
}

func ensureNotificationsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			reference TEXT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			read_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL`)
	if err != nil {
		log.Printf("failed to ensure notifications table: %v", err)
	}
}

func ensureUsersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		log.Printf("failed to ensure users table: %v", err)
	}
}

func ensureListingsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id UUID PRIMARY KEY,
			seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','sold','removed')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id)`)
	if err != nil {
		log.Printf("failed to ensure listings table: %v", err)
	}
}

func ensureIntentTables() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS purchase_intents (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			buyer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK (status IN (
				'pending','negotiating','agreed','rejected','cancelled','expired'
			)),
			initial_price NUMERIC(12,2) NOT NULL,
			negotiated_price NUMERIC(12,2) NULL,
			final_price NUMERIC(12,2) NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			agreed_at TIMESTAMPTZ NULL,
			expires_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_intents_parties ON purchase_intents(product_id, buyer_id, seller_id);
		CREATE INDEX IF NOT EXISTS idx_intents_buyer ON purchase_intents(product_id, buyer_id, created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_intents_live ON purchase_intents(product_id, buyer_id)
			WHERE status IN ('pending','negotiating','agreed')`)
	if err != nil {
		log.Printf("failed to ensure purchase_intents table: %v", err)
	}

	_, err = Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS negotiations (
			id TEXT PRIMARY KEY,
			intent_id UUID NOT NULL REFERENCES purchase_intents(id) ON DELETE CASCADE,
			proposer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			proposed_price NUMERIC(12,2) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('pending','accepted','rejected')),
			created_at TIMESTAMPTZ NOT NULL,
			responded_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_negotiations_intent ON negotiations(intent_id, created_at)`)
	if err != nil {
		log.Printf("failed to ensure negotiations table: %v", err)
	}
}

func ensureOrderTables() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS c2c_orders (
			id UUID PRIMARY KEY,
			intent_id UUID NOT NULL UNIQUE REFERENCES purchase_intents(id) ON DELETE CASCADE,
			buyer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			final_price NUMERIC(12,2) NOT NULL,
			buyer_commission NUMERIC(12,2) NOT NULL,
			seller_commission NUMERIC(12,2) NOT NULL,
			platform_commission NUMERIC(12,2) NOT NULL,
			seller_net NUMERIC(12,2) NOT NULL,
			buyer_total NUMERIC(12,2) NOT NULL,
			status TEXT NOT NULL CHECK (status IN (
				'pending_payment','paid','pending_delivery','delivered','verified','completed','cancelled'
			)),
			created_at TIMESTAMPTZ NOT NULL,
			paid_at TIMESTAMPTZ NULL,
			completed_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_c2c_orders_buyer ON c2c_orders(buyer_id);
		CREATE INDEX IF NOT EXISTS idx_c2c_orders_seller ON c2c_orders(seller_id)`)
	if err != nil {
		log.Printf("failed to ensure c2c_orders table: %v", err)
	}

	_, err = Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS delivery_verifications (
			order_id UUID PRIMARY KEY REFERENCES c2c_orders(id) ON DELETE CASCADE,
			buyer_code TEXT NOT NULL,
			seller_code TEXT NOT NULL,
			buyer_code_verified BOOLEAN NOT NULL DEFAULT FALSE,
			seller_code_verified BOOLEAN NOT NULL DEFAULT FALSE,
			buyer_code_verified_at TIMESTAMPTZ NULL,
			seller_code_verified_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL
		)`)
	if err != nil {
		log.Printf("failed to ensure delivery_verifications table: %v", err)
	}
}

func ensurePaymentsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES c2c_orders(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','settled','failed')),
			created_at TIMESTAMPTZ NOT NULL,
			settled_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id)`)
	if err != nil {
		log.Printf("failed to ensure payments table: %v", err)
	}
}

func ensureMessagesTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			intent_id UUID NOT NULL REFERENCES purchase_intents(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			read_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_intent ON messages(intent_id, created_at)`)
	if err != nil {
		log.Printf("failed to ensure messages table: %v", err)
	}
}

func ensureReviewsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reviews (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			order_id UUID NOT NULL REFERENCES c2c_orders(id) ON DELETE CASCADE,
			reviewer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			reviewee_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (order_id, reviewer_id)
		);
		CREATE INDEX IF NOT EXISTS idx_reviews_reviewee ON reviews(reviewee_id, created_at)`)
	if err != nil {
		log.Printf("failed to ensure reviews table: %v", err)
	}
}
