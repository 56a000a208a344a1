package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
)

// OrderHandler exposes pending orders and their spot adds.
type OrderHandler struct {
	resolver
	orderService services.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService services.OrderService, accounts services.AccountDirectory, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		resolver:     resolver{accounts: accounts},
		orderService: orderService,
		logger:       logger,
	}
}

func (h *OrderHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bot/orders", h.ListOrders).Methods("GET")
	router.HandleFunc("/bot/orders", h.AddOrder).Methods("POST")
	router.HandleFunc("/bot/removed-orders", h.ListRemoved).Methods("GET")
	router.HandleFunc("/bot/orders/{id}", h.GetOrder).Methods("GET")
	router.HandleFunc("/bot/orders/{id}", h.UpdateOrder).Methods("PUT")
	router.HandleFunc("/bot/orders/{id}", h.DeleteOrder).Methods("DELETE")
	router.HandleFunc("/bot/orders/{parentId}/spot-adds", h.AddSpotAdd).Methods("POST")
	router.HandleFunc("/bot/orders/{parentId}/spot-adds/{index}", h.UpdateSpotAdd).Methods("PUT")
	router.HandleFunc("/bot/orders/{parentId}/spot-adds/{index}", h.DeleteSpotAdd).Methods("DELETE")
}

// ListOrders returns every pending order of the account
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	orders, err := h.orderService.ListOrders(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "orders fetched", orders)
}

// ListRemoved returns orders the worker moved out of the pending set
func (h *OrderHandler) ListRemoved(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	orders, err := h.orderService.ListRemoved(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "removed orders fetched", orders)
}

// AddOrder creates a pending order
func (h *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req models.NewOrderRequest
	account, err := decodeBody(r, &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.namespace(r, account)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orderService.AddOrder(r.Context(), ns, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "order added", order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orderService.GetOrder(r.Context(), ns, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "order fetched", order)
}

// UpdateOrder applies a partial update to a pending order
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch models.OrderPatch
	account, err := decodeBody(r, &patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.namespace(r, account)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orderService.UpdatePendingOrder(r.Context(), ns, mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "order updated", order)
}

// DeleteOrder removes the order and queues its broker ticket for cancellation
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.orderService.QueueDeletion(r.Context(), ns, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "order queued for deletion", nil)
}

func (h *OrderHandler) AddSpotAdd(w http.ResponseWriter, r *http.Request) {
	var in models.SpotAddInput
	account, err := decodeBody(r, &in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.namespace(r, account)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	spots, err := h.orderService.AddSpotAdd(r.Context(), ns, mux.Vars(r)["parentId"], in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "spot add added", spots)
}

func (h *OrderHandler) UpdateSpotAdd(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch models.SpotAddPatch
	account, err := decodeBody(r, &patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.namespace(r, account)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	spot, err := h.orderService.UpdateSpotAdd(r.Context(), ns, mux.Vars(r)["parentId"], index, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "spot add updated", spot)
}

func (h *OrderHandler) DeleteSpotAdd(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.orderService.QueueSpotDeletion(r.Context(), ns, mux.Vars(r)["parentId"], index); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "spot add queued for deletion", nil)
}
