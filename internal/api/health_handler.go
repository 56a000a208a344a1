package api

import (
	"encoding/json"
	"net/http"

	"github.com/vikasavnish/botbridge/internal/store"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   bool   `json:"store"`
}

// NewHealthHandler responds to health check requests. It reports 503 while
// the key-value store is unreachable.
func NewHealthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Version: "1.0.0", Store: st.Ready()}
		status := http.StatusOK
		if !resp.Store {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
