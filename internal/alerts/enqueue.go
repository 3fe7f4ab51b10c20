package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

func enqueue(taskType string, payload any, queue string) error {
	if client == nil {
		return fmt.Errorf("alerts not initialized")
	}
	b, _ := json.Marshal(payload)
	_, err := client.Enqueue(asynq.NewTask(taskType, b), asynq.Queue(queue))
	return err
}

// EnqueueWelcomeEmail schedules a welcome email to the user
func EnqueueWelcomeEmail(userID, email, name string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("Welcome to Tradepost, %s!", name),
		Body:    fmt.Sprintf("Hi %s, thanks for joining Tradepost. You can now list items and haggle over prices with other members.", name),
	}
	return enqueue(TaskWelcomeEmail, WelcomeEmailPayload{
		UserID: userID, Name: name, Email: email, Envelope: env, SentAt: time.Now(),
	}, "emails")
}

// EnqueueOfferProposed notifies the counterparty about a new offer
func EnqueueOfferProposed(intentID, offerID, proposerID, email, price string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "You received a new price offer",
		Body:    fmt.Sprintf("A new offer of %s was made in your negotiation. Open the thread to accept, reject or counter.", price),
	}
	return enqueue(TaskOfferProposed, OfferProposedPayload{
		IntentID: intentID, OfferID: offerID, ProposerID: proposerID,
		Email: email, Price: price, Envelope: env, SentAt: time.Now(),
	}, "emails")
}

// EnqueueOfferResponded notifies the proposer their offer was decided
func EnqueueOfferResponded(intentID, offerID, email, price string, accepted bool) error {
	subject := "Your offer was rejected"
	body := fmt.Sprintf("Your offer of %s was rejected. You can submit a new one from the negotiation thread.", price)
	if accepted {
		subject = "Your offer was accepted"
		body = fmt.Sprintf("Your offer of %s was accepted. The buyer can now confirm the final price to create the order.", price)
	}
	return enqueue(TaskOfferResponded, OfferRespondedPayload{
		IntentID: intentID, OfferID: offerID, Accepted: accepted,
		Email: email, Price: price,
		Envelope: EmailEnvelope{To: email, Subject: subject, Body: body},
		SentAt:   time.Now(),
	}, "emails")
}

// EnqueueOrderCreated notifies the seller a negotiated order was created
func EnqueueOrderCreated(orderID, intentID, buyerID, sellerID, sellerEmail, amount string) error {
	env := EmailEnvelope{
		To:      sellerEmail,
		Subject: "A buyer confirmed the agreed price",
		Body:    fmt.Sprintf("Order %s was created for %s. You will be notified when the payment lands.", orderID, amount),
	}
	return enqueue(TaskOrderCreated, OrderEventPayload{
		OrderID: orderID, IntentID: intentID, BuyerID: buyerID, SellerID: sellerID,
		Email: sellerEmail, Amount: amount, Envelope: env, SentAt: time.Now(),
	}, "emails")
}

// EnqueueOrderPaid notifies the seller the buyer's payment settled
func EnqueueOrderPaid(orderID, intentID, buyerID, sellerID, sellerEmail, amount string) error {
	env := EmailEnvelope{
		To:      sellerEmail,
		Subject: "Order paid, arrange the handoff",
		Body:    fmt.Sprintf("Order %s is paid (%s). Agree on a meeting point in the thread and exchange verification codes at delivery.", orderID, amount),
	}
	return enqueue(TaskOrderPaid, OrderEventPayload{
		OrderID: orderID, IntentID: intentID, BuyerID: buyerID, SellerID: sellerID,
		Email: sellerEmail, Amount: amount, Envelope: env, SentAt: time.Now(),
	}, "emails")
}

// EnqueueOrderCompleted notifies the seller both codes verified
func EnqueueOrderCompleted(orderID, intentID, buyerID, sellerID, sellerEmail, amount string) error {
	env := EmailEnvelope{
		To:      sellerEmail,
		Subject: "Order completed",
		Body:    fmt.Sprintf("Order %s is complete. %s minus the platform commission will be paid out to you.", orderID, amount),
	}
	return enqueue(TaskOrderCompleted, OrderEventPayload{
		OrderID: orderID, IntentID: intentID, BuyerID: buyerID, SellerID: sellerID,
		Email: sellerEmail, Amount: amount, Envelope: env, SentAt: time.Now(),
	}, "emails")
}

// EnqueueMessageNew notifies the recipient of a new thread message
func EnqueueMessageNew(intentID, senderID, email, body string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "New message in your negotiation",
		Body:    body,
	}
	return enqueue(TaskMessageNew, MessageNewPayload{
		IntentID: intentID, SenderID: senderID, Email: email, Body: body,
		Envelope: env, SentAt: time.Now(),
	}, "emails")
}
