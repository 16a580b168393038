package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartService is the cart owner's view of the service layer.
type CartService interface {
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error)
	UpdateItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*domain.CartView, error)
	ClearCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error)
	GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error)
	GetCartSummary(ctx context.Context, userID primitive.ObjectID) (*domain.CartSummary, error)
}

// AnalyticsService serves the admin and vendor reports.
type AnalyticsService interface {
	GetCartAnalytics(ctx context.Context, period domain.Period, p domain.Principal) (*domain.CartAnalytics, error)
	GetAbandonedCarts(ctx context.Context, limit int, p domain.Principal) ([]domain.AbandonedCart, error)
}

type CartHandler struct {
	carts        CartService
	analytics    AnalyticsService
	maxBodyBytes int64
}

func NewCartHandler(carts CartService, analytics AnalyticsService, maxBodyBytes int64) *CartHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &CartHandler{
		carts:        carts,
		analytics:    analytics,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if msg, ok := check(&req, cartItemMessages); !ok {
		respondMessage(w, r, http.StatusBadRequest, msg)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	productID, _ := primitive.ObjectIDFromHex(req.ProductID)
	view, err := h.carts.AddItem(r.Context(), p.ID, productID, quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Item added to cart successfully", view)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if msg, ok := check(&req, cartItemMessages); !ok {
		respondMessage(w, r, http.StatusBadRequest, msg)
		return
	}

	productID, _ := primitive.ObjectIDFromHex(req.ProductID)
	view, err := h.carts.UpdateItemQuantity(r.Context(), p.ID, productID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Cart item quantity updated successfully", view)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	productID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "productId"))
	if err != nil {
		respondMessage(w, r, http.StatusBadRequest, msgInvalidProductID)
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), p.ID, productID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Item removed from cart successfully", view)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	view, err := h.carts.ClearCart(r.Context(), p.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Cart cleared successfully", view)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(r.Context(), p.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if view.ID == nil {
		respondOK(w, r, "Cart is empty", view)
		return
	}
	respondOK(w, r, "Cart retrieved successfully", view)
}

func (h *CartHandler) GetCartSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	summary, err := h.carts.GetCartSummary(r.Context(), p.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Cart summary retrieved successfully", summary)
}

func (h *CartHandler) GetCartAnalytics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	q := analyticsQuery{Period: r.URL.Query().Get("period")}
	if msg, ok := check(&q, analyticsMessages); !ok {
		respondMessage(w, r, http.StatusBadRequest, msg)
		return
	}
	period, err := domain.ParsePeriod(q.Period)
	if err != nil {
		respondError(w, r, err)
		return
	}

	analytics, err := h.analytics.GetCartAnalytics(r.Context(), period, p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Cart analytics retrieved successfully", analytics)
}

func (h *CartHandler) GetAbandonedCarts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var q abandonedQuery
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit == 0 {
			respondMessage(w, r, http.StatusBadRequest, msgLimit)
			return
		}
		q.Limit = limit
	}
	if msg, ok := check(&q, abandonedMessages); !ok {
		respondMessage(w, r, http.StatusBadRequest, msg)
		return
	}

	carts, err := h.analytics.GetAbandonedCarts(r.Context(), q.Limit, p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, "Abandoned carts retrieved successfully", carts)
}

func (h *CartHandler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondMessage(w, r, http.StatusUnauthorized, "Unauthorized: No user found")
	}
	return p, ok
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondMessage(w, r, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}
