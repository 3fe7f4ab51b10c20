package alerts

import "time"

// Task type constants
const (
	TaskWelcomeEmail   = "email:welcome"
	TaskOfferProposed  = "email:offer_proposed"
	TaskOfferResponded = "email:offer_responded"
	TaskOrderCreated   = "email:order_created"
	TaskOrderPaid      = "email:order_paid"
	TaskOrderCompleted = "email:order_completed"
	TaskMessageNew     = "email:message_new"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Welcome email payload
type WelcomeEmailPayload struct {
	UserID   string        `json:"user_id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Offer proposed payload (sent to the counterparty)
type OfferProposedPayload struct {
	IntentID   string        `json:"intent_id"`
	OfferID    string        `json:"offer_id"`
	ProposerID string        `json:"proposer_id"`
	Email      string        `json:"email"`
	Price      string        `json:"price"`
	Envelope   EmailEnvelope `json:"envelope"`
	SentAt     time.Time     `json:"sent_at"`
}

// Offer responded payload (sent to the proposer)
type OfferRespondedPayload struct {
	IntentID string        `json:"intent_id"`
	OfferID  string        `json:"offer_id"`
	Accepted bool          `json:"accepted"`
	Email    string        `json:"email"`
	Price    string        `json:"price"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Order lifecycle payload, shared by created/paid/completed tasks
type OrderEventPayload struct {
	OrderID  string        `json:"order_id"`
	IntentID string        `json:"intent_id"`
	BuyerID  string        `json:"buyer_id"`
	SellerID string        `json:"seller_id"`
	Email    string        `json:"email"`
	Amount   string        `json:"amount"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Message new payload (sent to recipient on new message)
type MessageNewPayload struct {
	IntentID string        `json:"intent_id"`
	SenderID string        `json:"sender_id"`
	Email    string        `json:"email"`
	Body     string        `json:"body"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}
