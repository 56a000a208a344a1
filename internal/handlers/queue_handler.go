package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
)

// SessionCounter reports live streaming sessions of a namespace.
type SessionCounter interface {
	Active(ctx context.Context, ns keyspace.Namespace) (int64, error)
}

// QueueHandler exposes the deletion queue and stream status of an account.
type QueueHandler struct {
	resolver
	queue    services.DeletionQueue
	sessions SessionCounter
	logger   *zap.Logger
}

func NewQueueHandler(queue services.DeletionQueue, sessions SessionCounter, accounts services.AccountDirectory, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{
		resolver: resolver{accounts: accounts},
		queue:    queue,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *QueueHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bot/orders-to-delete", h.Enqueue).Methods("POST")
	router.HandleFunc("/bot/delete-queue", h.Pending).Methods("GET")
	router.HandleFunc("/bot/stream-status", h.StreamStatus).Methods("GET")
}

type enqueueRequest struct {
	OrderTicket *models.Ticket `json:"orderTicket"`
	OrderID     *models.Ticket `json:"orderId"`
}

// Enqueue adds a raw broker ticket to the cancellation queue
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
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
	ticket := req.OrderTicket
	if ticket == nil {
		ticket = req.OrderID
	}
	var raw string
	if ticket != nil {
		raw = ticket.String()
	}
	if err := h.queue.Enqueue(r.Context(), ns, raw); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "ticket queued for deletion", nil)
}

// Pending lists tickets the worker has not consumed yet
func (h *QueueHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tickets, err := h.queue.Pending(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "delete queue fetched", tickets)
}

type streamStatus struct {
	AccountNumber string `json:"accountNumber"`
	Streaming     bool   `json:"streaming"`
	Sessions      int64  `json:"sessions"`
}

// StreamStatus reports whether a websocket session is streaming the account
func (h *QueueHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.sessions.Active(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "stream status fetched", streamStatus{AccountNumber: ns.Account, Streaming: n > 0, Sessions: n})
}
