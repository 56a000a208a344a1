package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
)

// RunningTradeHandler exposes open positions and the adjustments the worker
// applies to them.
type RunningTradeHandler struct {
	resolver
	tradeService services.RunningTradeService
	logger       *zap.Logger
}

func NewRunningTradeHandler(tradeService services.RunningTradeService, accounts services.AccountDirectory, logger *zap.Logger) *RunningTradeHandler {
	return &RunningTradeHandler{
		resolver:     resolver{accounts: accounts},
		tradeService: tradeService,
		logger:       logger,
	}
}

func (h *RunningTradeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bot/running-trades", h.ListTrades).Methods("GET")
	router.HandleFunc("/bot/running-trades", h.CreateTrade).Methods("POST")
	router.HandleFunc("/bot/running-trades/{id}", h.GetTrade).Methods("GET")
	router.HandleFunc("/bot/running-trades/{id}", h.CloseTrade).Methods("DELETE")
	router.HandleFunc("/bot/running-trades/{id}/sltp-breakeven", h.SetSlTpBreakeven).Methods("PUT")
	router.HandleFunc("/bot/running-trades/{id}/partial-close", h.SetPartialClose).Methods("PUT")
	router.HandleFunc("/bot/running-trades/{id}/volume-to-close", h.SetVolumeToClose).Methods("POST")
	router.HandleFunc("/bot/running-trades/{parentId}/spot-adds", h.AddSpotAdd).Methods("POST")
	router.HandleFunc("/bot/running-trades/{parentId}/spot-adds/{index}", h.UpdateSpotAdd).Methods("PUT")
	router.HandleFunc("/bot/running-trades/{parentId}/spot-adds/{index}", h.DeleteSpotAdd).Methods("DELETE")
	router.HandleFunc("/bot/executed-orders", h.ListExecuted).Methods("GET")
}

func (h *RunningTradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	trades, err := h.tradeService.ListTrades(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "running trades fetched", trades)
}

// CreateTrade records a running trade
func (h *RunningTradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var req models.NewTradeRequest
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
	trade, err := h.tradeService.CreateTrade(r.Context(), ns, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "running trade added", trade)
}

func (h *RunningTradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	trade, err := h.tradeService.GetTrade(r.Context(), ns, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "running trade fetched", trade)
}

// CloseTrade asks the worker to close the whole position
func (h *RunningTradeHandler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.tradeService.QueueClose(r.Context(), ns, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "running trade queued for close", nil)
}

func (h *RunningTradeHandler) SetSlTpBreakeven(w http.ResponseWriter, r *http.Request) {
	var req models.SlTpBreakeven
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
	trade, err := h.tradeService.SetSlTpBreakeven(r.Context(), ns, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "sl/tp/breakeven updated", trade)
}

func (h *RunningTradeHandler) SetPartialClose(w http.ResponseWriter, r *http.Request) {
	var req models.PartialClose
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
	trade, err := h.tradeService.SetPartialClose(r.Context(), ns, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "partial close updated", trade)
}

func (h *RunningTradeHandler) SetVolumeToClose(w http.ResponseWriter, r *http.Request) {
	var req models.VolumeToClose
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
	trade, err := h.tradeService.SetVolumeToClose(r.Context(), ns, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "volume to close updated", trade)
}

func (h *RunningTradeHandler) AddSpotAdd(w http.ResponseWriter, r *http.Request) {
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
	spots, err := h.tradeService.AddSpotAdd(r.Context(), ns, mux.Vars(r)["parentId"], in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "spot add added", spots)
}

func (h *RunningTradeHandler) UpdateSpotAdd(w http.ResponseWriter, r *http.Request) {
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
	spot, err := h.tradeService.UpdateSpotAdd(r.Context(), ns, mux.Vars(r)["parentId"], index, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "spot add updated", spot)
}

func (h *RunningTradeHandler) DeleteSpotAdd(w http.ResponseWriter, r *http.Request) {
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
	if err := h.tradeService.QueueSpotDeletion(r.Context(), ns, mux.Vars(r)["parentId"], index); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "spot add queued for deletion", nil)
}

// ListExecuted returns the worker's execution log
func (h *RunningTradeHandler) ListExecuted(w http.ResponseWriter, r *http.Request) {
	ns, err := h.namespace(r, "")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	executed, err := h.tradeService.ListExecuted(r.Context(), ns)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "executed orders fetched", executed)
}
