package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
)

// CopyTradeHandler relays master/slave configuration to the copy engine.
type CopyTradeHandler struct {
	copyTradeService services.CopyTradeService
	logger           *zap.Logger
}

func NewCopyTradeHandler(copyTradeService services.CopyTradeService, logger *zap.Logger) *CopyTradeHandler {
	return &CopyTradeHandler{
		copyTradeService: copyTradeService,
		logger:           logger,
	}
}

func (h *CopyTradeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/copy-trade/link-slave", h.LinkSlave).Methods("POST")
	router.HandleFunc("/copy-trade/unlink-slave", h.UnlinkSlave).Methods("POST")
	router.HandleFunc("/copy-trade/set-paused", h.SetPaused).Methods("POST")
	router.HandleFunc("/copy-trade/set-multiplier", h.SetMultiplier).Methods("POST")
	router.HandleFunc("/copy-trade/set-symbol-map", h.SetSymbolMap).Methods("POST")
	router.HandleFunc("/copy-trade/edit-symbol-map", h.SetSymbolMap).Methods("POST")
	router.HandleFunc("/copy-trade/delete-symbol-map", h.DeleteSymbolMap).Methods("POST")
	router.HandleFunc("/copy-trade/set-common-aliases", h.SetAliases).Methods("POST")
	router.HandleFunc("/copy-trade/create-master", h.CreateMaster).Methods("POST")
	router.HandleFunc("/copy-trade/get-slaves", h.GetSlaves).Methods("GET")
	router.HandleFunc("/copy-trade/get-slave-config", h.GetSlaveConfig).Methods("GET")
	router.HandleFunc("/copy-trade/get-symbol-map", h.GetSymbolMap).Methods("GET")
	router.HandleFunc("/copy-trade/get-common-aliases", h.GetAliases).Methods("GET")
	router.HandleFunc("/copy-trade/get-account-symbols", h.GetAccountSymbols).Methods("GET")
}

// write decodes the body into req and runs fn with the caller's user id.
func (h *CopyTradeHandler) write(w http.ResponseWriter, r *http.Request, req interface{}, fn func(userID uint) (string, error)) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if _, err := decodeBody(r, req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	message, err := fn(uid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, message, nil)
}

// read runs fn with the caller's user id and the request's query string.
func (h *CopyTradeHandler) read(w http.ResponseWriter, r *http.Request, message string, fn func(userID uint, q func(string) string) (interface{}, error)) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	data, err := fn(uid, r.URL.Query().Get)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, message, data)
}

func (h *CopyTradeHandler) LinkSlave(w http.ResponseWriter, r *http.Request) {
	var req models.CopyLinkRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		already, err := h.copyTradeService.Link(r.Context(), uid, req)
		if already {
			return "slave already linked to master", err
		}
		return "slave linked to master", err
	})
}

func (h *CopyTradeHandler) UnlinkSlave(w http.ResponseWriter, r *http.Request) {
	var req models.CopyLinkRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "slave unlinked from master", h.copyTradeService.Unlink(r.Context(), uid, req)
	})
}

func (h *CopyTradeHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req models.PauseRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		if err := h.copyTradeService.SetPaused(r.Context(), uid, req); err != nil {
			return "", err
		}
		if *req.Paused {
			return "slave paused", nil
		}
		return "slave resumed", nil
	})
}

func (h *CopyTradeHandler) SetMultiplier(w http.ResponseWriter, r *http.Request) {
	var req models.MultiplierRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "multiplier set", h.copyTradeService.SetMultiplier(r.Context(), uid, req)
	})
}

// SetSymbolMap serves both set-symbol-map and edit-symbol-map; the write is
// an upsert either way.
func (h *CopyTradeHandler) SetSymbolMap(w http.ResponseWriter, r *http.Request) {
	var req models.SymbolMapRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "symbol map set", h.copyTradeService.SetSymbolMap(r.Context(), uid, req)
	})
}

func (h *CopyTradeHandler) DeleteSymbolMap(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteSymbolMapRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "symbol map deleted", h.copyTradeService.DeleteSymbolMap(r.Context(), uid, req)
	})
}

func (h *CopyTradeHandler) SetAliases(w http.ResponseWriter, r *http.Request) {
	var req models.AliasesRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "common aliases set", h.copyTradeService.SetAliases(r.Context(), uid, req)
	})
}

func (h *CopyTradeHandler) CreateMaster(w http.ResponseWriter, r *http.Request) {
	var req models.AccountRequest
	h.write(w, r, &req, func(uid uint) (string, error) {
		return "master account created", h.copyTradeService.CreateMaster(r.Context(), uid, req.AccountNumber)
	})
}

func (h *CopyTradeHandler) GetSlaves(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "slaves fetched", func(uid uint, q func(string) string) (interface{}, error) {
		return h.copyTradeService.Slaves(r.Context(), uid, q("masterAccount"))
	})
}

func (h *CopyTradeHandler) GetSlaveConfig(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "slave config fetched", func(uid uint, q func(string) string) (interface{}, error) {
		return h.copyTradeService.SlaveConfig(r.Context(), uid, q("masterAccount"), q("slaveAccount"))
	})
}

func (h *CopyTradeHandler) GetSymbolMap(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "symbol map fetched", func(uid uint, q func(string) string) (interface{}, error) {
		return h.copyTradeService.SymbolMap(r.Context(), uid, q("slaveAccount"))
	})
}

func (h *CopyTradeHandler) GetAliases(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "common aliases fetched", func(uid uint, q func(string) string) (interface{}, error) {
		return h.copyTradeService.Aliases(r.Context(), uid, q("slaveAccount"))
	})
}

func (h *CopyTradeHandler) GetAccountSymbols(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "account symbols fetched", func(uid uint, q func(string) string) (interface{}, error) {
		return h.copyTradeService.AccountSymbols(r.Context(), uid, q("accountNumber"))
	})
}
