package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/luca0405/beanstalker/internal/auth"
	"github.com/luca0405/beanstalker/internal/email"
	"github.com/luca0405/beanstalker/internal/model"
	"github.com/luca0405/beanstalker/internal/store"
)

// OrderNotifier is the slice of the push notifier order management calls.
// Both methods absorb their own failures.
type OrderNotifier interface {
	SendOrderStatusNotification(ctx context.Context, userID, orderID int64, status string)
	NotifyAdminsAboutNewOrder(ctx context.Context, orderID int64, username string, total int64)
}

type OrderHandler struct {
	orders   *store.OrderStore
	users    *store.UserStore
	notifier OrderNotifier
	email    *email.Client
	logger   *slog.Logger
}

func NewOrderHandler(os *store.OrderStore, us *store.UserStore, n OrderNotifier, ec *email.Client, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: os, users: us, notifier: n, email: ec, logger: logger}
}

type createOrderRequest struct {
	Total int64           `json:"total"`
	Items json.RawMessage `json:"items"`
}

// Create handles POST /api/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Total <= 0 {
		writeError(w, http.StatusBadRequest, "total must be positive")
		return
	}

	items := string(req.Items)
	if items == "" {
		items = "[]"
	}

	order, err := h.orders.Create(ac.UserID, req.Total, items)
	if err != nil {
		h.logger.Error("create order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	// Admins hear about every new order; the order itself is already
	// committed regardless of what happens to the broadcast.
	h.notifier.NotifyAdminsAboutNewOrder(r.Context(), order.ID, ac.Username, order.Total)

	writeJSON(w, http.StatusCreated, order)
}

// List handles GET /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	orders, err := h.orders.ListByUser(ac.UserID)
	if err != nil {
		h.logger.Error("list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// Get handles GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	order, err := h.orders.GetByID(id)
	if err != nil {
		h.logger.Error("get order", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	if order == nil || (order.UserID != ac.UserID && !ac.IsAdmin) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListAll handles GET /api/admin/orders
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List()
	if err != nil {
		h.logger.Error("list all orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/admin/orders/{id}/status
//
// The status change is persisted first; notification delivery runs after
// and can fail entirely without affecting the response.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !model.ValidOrderStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	order, err := h.orders.UpdateStatus(id, req.Status)
	if err != nil {
		h.logger.Error("update order status", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.notifier.SendOrderStatusNotification(r.Context(), order.UserID, order.ID, order.Status)
	h.emailBackstop(order)

	writeJSON(w, http.StatusOK, order)
}

// emailBackstop emails the customer when configured. Best effort only.
func (h *OrderHandler) emailBackstop(order *model.Order) {
	if !h.email.Configured() {
		return
	}
	user, err := h.users.GetByID(order.UserID)
	if err != nil || user == nil || user.Email == "" {
		return
	}
	if err := h.email.SendOrderStatus(user.Email, order.ID, order.Status); err != nil {
		h.logger.Warn("order status email", "order_id", order.ID, "error", err)
	}
}
