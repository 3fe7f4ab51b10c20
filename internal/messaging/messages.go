package messaging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"tradepost/internal/alerts"
	"tradepost/internal/db"
	"tradepost/internal/negotiation"
	"tradepost/internal/order"
)

// threadInfo is what the lock policy needs to know about an intent.
type threadInfo struct {
	buyerID     string
	sellerID    string
	status      negotiation.IntentStatus
	orderStatus *order.Status
}

func loadThread(ctx context.Context, intentID string) (*threadInfo, error) {
	var (
		t      threadInfo
		status string
		ordSt  *string
	)
	err := db.Conn.QueryRow(ctx, `
		SELECT pi.buyer_id, pi.seller_id, pi.status, o.status
		FROM purchase_intents pi
		LEFT JOIN c2c_orders o ON o.intent_id = pi.id
		WHERE pi.id = $1`, intentID,
	).Scan(&t.buyerID, &t.sellerID, &status, &ordSt)
	if err != nil {
		return nil, err
	}
	if t.status, err = negotiation.ParseIntentStatus(status); err != nil {
		return nil, err
	}
	if ordSt != nil {
		st, err := order.ParseStatus(*ordSt)
		if err != nil {
			return nil, err
		}
		t.orderStatus = &st
	}
	return &t, nil
}

// SendMessage - buyer or seller sends a message in a negotiation thread.
// The composer lock policy is enforced server-side: an agreed but
// unpaid thread and a completed one both refuse new messages.
func SendMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	intentID := c.Param("id")
	if intentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing intent id"})
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	t, err := loadThread(context.Background(), intentID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "negotiation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch negotiation"})
	}

	var recipientID string
	switch userID {
	case t.buyerID:
		recipientID = t.sellerID
	case t.sellerID:
		recipientID = t.buyerID
	default:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this negotiation"})
	}

	if open, hint := negotiation.ThreadState(t.status, t.orderStatus); !open {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success":    false,
			"error_code": negotiation.CodeThreadLocked,
			"error":      hint,
		})
	}

	msgID := uuid.New().String()
	var createdAt time.Time
	err = db.Conn.QueryRow(context.Background(),
		`INSERT INTO messages (id, intent_id, sender_id, recipient_id, body)
         VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msgID, intentID, userID, recipientID, body.Content,
	).Scan(&createdAt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send message"})
	}

	BroadcastNewMessage(intentID, echo.Map{
		"id":           msgID,
		"intent_id":    intentID,
		"sender_id":    userID,
		"recipient_id": recipientID,
		"content":      body.Content,
		"created_at":   createdAt.UTC().Format(time.RFC3339),
	})

	// Email notification (best-effort)
	var recipientEmail string
	_ = db.Conn.QueryRow(context.Background(), `SELECT email FROM users WHERE id = $1`, recipientID).Scan(&recipientEmail)
	if recipientEmail != "" {
		_ = alerts.EnqueueMessageNew(intentID, userID, recipientEmail, body.Content)
	}

	return c.JSON(http.StatusOK, echo.Map{"message_id": msgID})
}

// ListMessages - get the conversation for a negotiation thread.
func ListMessages(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	intentID := c.Param("id")
	if intentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing intent id"})
	}

	t, err := loadThread(context.Background(), intentID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "negotiation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch negotiation"})
	}
	if userID != t.buyerID && userID != t.sellerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this negotiation"})
	}

	// Optional since filter for incremental fetches
	var rows pgx.Rows
	if sinceStr := c.QueryParam("since"); sinceStr != "" {
		sinceTime, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
		rows, err = db.Conn.Query(context.Background(),
			`SELECT id, sender_id, recipient_id, body, created_at, read_at
             FROM messages WHERE intent_id = $1 AND created_at > $2 ORDER BY created_at ASC`, intentID, sinceTime,
		)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list messages"})
		}
	} else {
		rows, err = db.Conn.Query(context.Background(),
			`SELECT id, sender_id, recipient_id, body, created_at, read_at
             FROM messages WHERE intent_id = $1 ORDER BY created_at ASC`, intentID,
		)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list messages"})
		}
	}
	defer rows.Close()

	type message struct {
		ID          string  `json:"id"`
		SenderID    string  `json:"sender_id"`
		RecipientID string  `json:"recipient_id"`
		Content     string  `json:"content"`
		CreatedAt   string  `json:"created_at"`
		ReadAt      *string `json:"read_at"`
	}

	msgs := []message{}
	for rows.Next() {
		var (
			m         message
			createdAt time.Time
			readAt    *time.Time
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &createdAt, &readAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		m.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		if readAt != nil {
			s := readAt.UTC().Format(time.RFC3339)
			m.ReadAt = &s
		}
		msgs = append(msgs, m)
	}

	composerOpen, composerHint := negotiation.ThreadState(t.status, t.orderStatus)
	return c.JSON(http.StatusOK, echo.Map{
		"messages":      msgs,
		"composer_open": composerOpen,
		"composer_hint": composerHint,
	})
}

// UnreadCount - get unread count for the current user in a thread.
func UnreadCount(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	intentID := c.Param("id")
	if intentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing intent id"})
	}

	t, err := loadThread(context.Background(), intentID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "negotiation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch negotiation"})
	}
	if userID != t.buyerID && userID != t.sellerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this negotiation"})
	}

	var count int64
	err = db.Conn.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM messages WHERE intent_id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		intentID, userID,
	).Scan(&count)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute unread count"})
	}

	return c.JSON(http.StatusOK, echo.Map{"unread": count})
}

// MarkMessageRead - recipient marks a specific message as read.
func MarkMessageRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	intentID := c.Param("id")
	msgID := c.Param("message_id")
	if intentID == "" || msgID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing intent or message id"})
	}

	var recipientID string
	err := db.Conn.QueryRow(context.Background(),
		`SELECT recipient_id FROM messages WHERE id = $1 AND intent_id = $2`, msgID, intentID,
	).Scan(&recipientID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "message not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch message"})
	}
	if recipientID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not the recipient"})
	}

	var readTS time.Time
	err = db.Conn.QueryRow(context.Background(),
		`UPDATE messages SET read_at = NOW() WHERE id = $1 AND recipient_id = $2 RETURNING read_at`, msgID, userID,
	).Scan(&readTS)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to mark read"})
	}

	BroadcastMessageRead(intentID, echo.Map{
		"message_id": msgID,
		"intent_id":  intentID,
		"user_id":    userID,
		"read_at":    readTS.UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusOK, echo.Map{"message_id": msgID, "read_at": readTS.UTC().Format(time.RFC3339)})
}
