package main

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"tradepost/internal/alerts"
	"tradepost/internal/auth"
	"tradepost/internal/config"
	"tradepost/internal/db"
	"tradepost/internal/listing"
	"tradepost/internal/messaging"
	appmw "tradepost/internal/middleware"
	"tradepost/internal/negotiation"
	"tradepost/internal/order"
	"tradepost/internal/payments"
	"tradepost/internal/review"
	"tradepost/internal/store/memstore"
	"tradepost/internal/store/pgstore"
	"tradepost/internal/verification"
)

// Fixed identities for STORE_DRIVER=memory so the protocol can be
// driven end to end without Postgres. Tokens are printed at startup.
const (
	devBuyerID   = "11111111-1111-1111-1111-111111111111"
	devSellerID  = "22222222-2222-2222-2222-222222222222"
	devListingID = "33333333-3333-3333-3333-333333333333"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	auth.Init(cfg.JWTSecret, cfg.JWTTTL)
	if err := alerts.ConfigureMailerFromEnv(); err != nil {
		log.Printf("mailer not fully configured: %v", err)
	}

	var (
		store    negotiation.Store
		notifier negotiation.Notifier
	)
	switch cfg.StoreDriver {
	case "memory":
		ms := memstore.New()
		seedDevData(ms)
		store = ms
		notifier = negotiation.NopNotifier{}
		log.Println("Running with the in-memory store (dev mode)")
	default:
		db.Init(cfg.DatabaseURL)
		alerts.Init(cfg.RedisAddr)
		defer alerts.Close()
		store = pgstore.New(db.Conn)
		notifier = alerts.NewNotifier()
	}

	e := newServer(cfg, store, notifier)

	log.Printf("API server listening on %s", cfg.HTTPAddr)
	if err := e.Start(cfg.HTTPAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// newServer wires the routes. With the in-memory store only the
// negotiation protocol itself is mounted; everything that reads the
// shared Postgres pool (accounts, listings, messaging, reviews,
// notifications, the payment ledger) stays off so no route can touch
// a connection that was never opened.
func newServer(cfg *config.Config, store negotiation.Store, notifier negotiation.Notifier) *echo.Echo {
	devMode := cfg.StoreDriver == "memory"

	rates := order.CommissionRates{
		BuyerPct:  decimal.NewFromFloat(cfg.BuyerCommissionPct),
		SellerPct: decimal.NewFromFloat(cfg.SellerCommissionPct),
	}
	negSvc := negotiation.NewService(store, notifier, rates)
	verifySvc := verification.NewService(store, notifier)
	payHandler := payments.NewHandler(negSvc)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Health
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	// Poll cadence advertised to clients
	e.GET("/client-config", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"poll_interval_ms": cfg.PollInterval.Milliseconds()})
	})

	// Negotiation protocol
	c2c := e.Group("/c2c")
	c2c.Use(appmw.JWTAuth(cfg.JWTSecret))
	negotiation.NewHandler(negSvc).Register(c2c)

	// Delivery verification, rate limited per user
	verifyLimiter := appmw.RedisRateLimit(rdb, "verify_code", cfg.VerifyCodeLimit, cfg.VerifyCodeWindow)
	verification.NewHandler(verifySvc).Register(c2c, verifyLimiter)

	if devMode {
		// No gateway in dev mode, payments settle on the spot.
		c2c.POST("/orders/:id/payment/init", payHandler.InitInstant)
		return e
	}

	// Public auth routes
	e.POST("/signup", auth.Signup)
	e.POST("/login", auth.Login)

	// Public listing discovery
	e.GET("/listings", listing.GetAllListings)
	e.GET("/listings/:id", listing.GetListing)
	e.GET("/c2c/sellers/:id/reviews", review.GetSellerReviews)

	// Payment gateway webhook (authenticated by the gateway, not a user)
	e.POST("/payments/callback", payHandler.Callback)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWTAuth(cfg.JWTSecret))

	g.GET("/me", auth.Me)
	g.POST("/listings", listing.CreateListing)

	// Payments
	c2c.POST("/orders/:id/payment/init", payHandler.Init)

	// Thread messaging
	c2c.GET("/intents/:id/messages", messaging.ListMessages)
	c2c.POST("/intents/:id/messages", messaging.SendMessage)
	c2c.GET("/intents/:id/messages/unread", messaging.UnreadCount)
	c2c.POST("/intents/:id/messages/:message_id/read", messaging.MarkMessageRead)
	c2c.GET("/intents/:id/ws", messaging.ThreadWS)

	// Reviews
	c2c.POST("/orders/:id/review", review.CreateReview)
	c2c.GET("/orders/:id/review", review.GetOrderReview)

	// In-app notifications
	g.GET("/notifications", alerts.ListNotifications)
	g.POST("/notifications/:id/read", alerts.MarkNotificationRead)

	return e
}

// seedDevData gives the in-memory store two users and a listing so a
// full negotiation can be driven from the first request.
func seedDevData(ms *memstore.Store) {
	ms.AddUser(devBuyerID, "Ana")
	ms.AddUser(devSellerID, "Luis")
	ms.AddListing(negotiation.Listing{
		ID:       devListingID,
		SellerID: devSellerID,
		Title:    "Vintage film camera",
		Price:    decimal.NewFromInt(1500),
	})

	for _, u := range []struct{ id, name string }{
		{devBuyerID, "buyer Ana"},
		{devSellerID, "seller Luis"},
	} {
		tok, err := auth.TokenFor(u.id)
		if err != nil {
			log.Printf("[dev] token for %s: %v", u.name, err)
			continue
		}
		log.Printf("[dev] %s (listing %s): Bearer %s", u.name, devListingID, tok)
	}
}
