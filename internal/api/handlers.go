package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/bidding"
	"github.com/xtrntr/carauction/internal/catalog"
	"github.com/xtrntr/carauction/internal/lifecycle"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/realtime"
	"github.com/xtrntr/carauction/internal/store"
	"github.com/xtrntr/carauction/internal/visibility"
)

//go:generate mockgen -source=handlers.go -destination=mock_services_test.go -package=api

// Authenticator issues and verifies tokens
type Authenticator interface {
	Login(ctx context.Context, email, password, ip string) (string, *models.User, error)
	ParseToken(token string) (models.Caller, error)
}

// Bidder accepts bids and buy-now purchases
type Bidder interface {
	PlaceBid(ctx context.Context, caller models.Caller, auctionID string, amount decimal.Decimal) (*bidding.Receipt, error)
	BuyNow(ctx context.Context, caller models.Caller, auctionID string) (*models.Auction, error)
}

// Lifecycle moves auctions between statuses
type Lifecycle interface {
	ChangeStatus(ctx context.Context, caller models.Caller, auctionID string, target models.AuctionStatus) (*models.Auction, error)
	Restore(ctx context.Context, caller models.Caller, auctionID string) (*models.Auction, error)
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
}

// Catalog serves vehicles, auction setup and viewer scoped reads
type Catalog interface {
	ListVehicles(ctx context.Context, caller models.Caller, limit int) ([]models.Vehicle, error)
	GetVehicle(ctx context.Context, caller models.Caller, id string) (*models.Vehicle, error)
	CreateVehicle(ctx context.Context, caller models.Caller, in catalog.VehicleInput) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, caller models.Caller, id string, in catalog.VehicleInput) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, caller models.Caller, id string) error

	CreateAuction(ctx context.Context, caller models.Caller, in catalog.AuctionInput) (*models.Auction, error)
	UpdateAuction(ctx context.Context, caller models.Caller, id string, patch catalog.AuctionPatch) (*models.Auction, error)
	ListAuctions(ctx context.Context, caller models.Caller, statuses []models.AuctionStatus, page store.Page) ([]models.Auction, error)
	GetAuction(ctx context.Context, caller models.Caller, id string) (*visibility.View, error)

	MyBids(ctx context.Context, caller models.Caller, page store.Page) ([]models.Bid, error)
	WonAuctions(ctx context.Context, caller models.Caller, page store.Page) ([]models.Auction, error)
	Notifications(ctx context.Context, caller models.Caller) ([]models.Notification, error)
	MarkRead(ctx context.Context, caller models.Caller, id string) error
}

// Subscriber attaches a websocket client to a realtime channel
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, channel string)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	auth       Authenticator
	bids       Bidder
	lifecycle  Lifecycle
	catalog    Catalog
	realtime   Subscriber
	cronSecret string
	logger     logrus.FieldLogger
}

// NewHandler creates a new handler
func NewHandler(auth Authenticator, bids Bidder, lc Lifecycle, cat Catalog, rt Subscriber, cronSecret string, logger logrus.FieldLogger) *Handler {
	return &Handler{
		auth:       auth,
		bids:       bids,
		lifecycle:  lc,
		catalog:    cat,
		realtime:   rt,
		cronSecret: cronSecret,
		logger:     logger,
	}
}

// Routes builds the HTTP router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/auth/login", h.Login)
	r.With(h.CronAuthMiddleware).Get("/cron/auction-lifecycle", h.RunLifecycle)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)

		r.Get("/ws", h.Subscribe)

		r.Get("/vehicles", h.ListVehicles)
		r.Post("/vehicles", h.CreateVehicle)
		r.Get("/vehicles/{id}", h.GetVehicle)
		r.Put("/vehicles/{id}", h.UpdateVehicle)
		r.Delete("/vehicles/{id}", h.DeleteVehicle)

		r.Get("/auctions", h.ListAuctions)
		r.Post("/auctions", h.CreateAuction)
		r.Get("/auctions/{id}", h.GetAuction)
		r.Patch("/auctions/{id}", h.UpdateAuction)
		r.Patch("/auctions/{id}/status", h.ChangeStatus)
		r.Post("/auctions/{id}/restore", h.Restore)
		r.Post("/auctions/{id}/bids", h.PlaceBid)
		r.Post("/auctions/{id}/buy-now", h.BuyNow)

		r.Get("/my-bids", h.MyBids)
		r.Get("/won-auctions", h.WonAuctions)
		r.Get("/notifications", h.Notifications)
		r.Patch("/notifications", h.MarkNotificationsRead)
	})
	return r
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		h.writeError(w, r, auctionerrors.ErrUnauthorized)
	}
	return c, ok
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// Subscribe upgrades the request to a websocket bound to ?channel=
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	channel := r.URL.Query().Get("channel")
	if err := realtime.Authorize(channel, c); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.realtime.Serve(w, r, channel)
}

// PlaceBid handles a bid on an auction
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.bids.PlaceBid(r.Context(), c, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// BuyNow purchases an auction at its buy-now price
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.bids.BuyNow(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ChangeStatus applies an administrator requested status transition
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.AuctionStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.lifecycle.ChangeStatus(r.Context(), c, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Restore brings an archived auction back
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.lifecycle.Restore(r.Context(), c, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RunLifecycle runs one lifecycle sweep for an external scheduler
func (h *Handler) RunLifecycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.lifecycle.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
