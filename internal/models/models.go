package models

// Realtime gateway message types
const (
	MessageConnected = "connected"
	MessageUpdate    = "update"
	MessageError     = "error"
)

// Snapshot is the full state of one namespace pushed on every gateway tick.
type Snapshot struct {
	Pending []PendingOrder                    `json:"pending"`
	Running []RunningTrade                    `json:"running"`
	Market  map[string]map[string]interface{} `json:"market"`
	Account map[string]interface{}            `json:"account"`
}

// ConnectedMessage is sent once after a successful handshake.
type ConnectedMessage struct {
	Type          string `json:"type"`
	UserID        uint   `json:"userId"`
	AccountNumber string `json:"accountNumber"`
}

// UpdateMessage carries one snapshot. Timestamp is unix milliseconds.
type UpdateMessage struct {
	Type      string   `json:"type"`
	Data      Snapshot `json:"data"`
	Timestamp int64    `json:"timestamp"`
}

// ErrorMessage reports a failed snapshot without closing the stream.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Response is the envelope of every JSON API reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Fields  interface{} `json:"fields,omitempty"`
}
