package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefw/go-shop-saga/internal/balance"
	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/inventory"
	"github.com/ariefw/go-shop-saga/internal/orders"
	"github.com/ariefw/go-shop-saga/internal/payment"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

type ShopHandler struct {
	Orders  orders.Store
	Coupons coupon.Ledger
	Balance *balance.Ledger
	Saga    *payment.Saga
	Redis   *redis.Client
}

func (h *ShopHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/pay", h.payOrder)
	r.Post("/coupons/{id}/issue", h.issueCoupon)
	r.Post("/balance/charge", h.chargeBalance)
	r.Get("/balance/{userID}", h.getBalance)
}

type createOrderReq struct {
	UserID   string             `json:"user_id"`
	CouponID string             `json:"coupon_id,omitempty"`
	Items    []orders.ItemInput `json:"items"`
}

type createOrderResp struct {
	OrderID    string    `json:"order_id"`
	TotalCents int       `json:"total_cents"`
	FinalCents int       `json:"final_cents"`
	ExpiredAt  time.Time `json:"expired_at"`
}

func (h *ShopHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid json"))
		return
	}
	if req.UserID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errBody("missing fields"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Create(ctx, req.UserID, req.CouponID, req.Items)
	if err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)

	writeJSON(w, http.StatusCreated, createOrderResp{
		OrderID:    o.ID,
		TotalCents: o.TotalCents,
		FinalCents: o.FinalCents,
		ExpiredAt:  o.ExpiredAt,
	})
}

func (h *ShopHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// fast path: status cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

type payOrderReq struct {
	UserID string `json:"user_id"`
}

func (h *ShopHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req payOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errBody("missing user_id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	receipt, err := h.Saga.Pay(ctx, req.UserID, orderID)
	if err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	h.cacheStatus(ctx, orderID, orders.StatusPaid)
	writeJSON(w, http.StatusOK, receipt)
}

type issueCouponReq struct {
	UserID string `json:"user_id"`
}

func (h *ShopHandler) issueCoupon(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "id")
	var req issueCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errBody("missing user_id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Coupons.Issue(ctx, req.UserID, couponID); err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "issued"})
}

type chargeReq struct {
	UserID      string `json:"user_id"`
	AmountCents int    `json:"amount_cents"`
}

func (h *ShopHandler) chargeBalance(w http.ResponseWriter, r *http.Request) {
	var req chargeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errBody("missing fields"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Balance.Charge(ctx, req.UserID, req.AmountCents, "", "balance charge")
	if err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance_cents": u.BalanceCents})
}

func (h *ShopHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Balance.Store.Get(ctx, userID)
	if err != nil {
		writeJSON(w, statusOf(err), errBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance_cents": u.BalanceCents})
}

func (h *ShopHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body, _ := json.Marshal(map[string]any{"status": st})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }

// statusOf maps domain sentinels onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, balance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrExpired),
		errors.Is(err, coupon.ErrExpired):
		return http.StatusGone
	case errors.Is(err, orders.ErrAlreadyPaid),
		errors.Is(err, orders.ErrStatusChanged),
		errors.Is(err, coupon.ErrAlreadyIssued),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrSoldOut),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, balance.ErrInsufficientBalance),
		errors.Is(err, balance.ErrVersionConflict),
		errors.Is(err, payment.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInvalidQty),
		errors.Is(err, orders.ErrInvalidAmount),
		errors.Is(err, balance.ErrInvalidAmount),
		errors.Is(err, inventory.ErrInvalidQty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
