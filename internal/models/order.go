package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Allowed values for order fields
var (
	EntryTypes  = []string{"engulfing", "twoC", "BR"}
	TradeSetups = []string{"buy", "sell"}
	OrderTypes  = []string{"limit", "stop"}
	Timeframes  = []string{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "1d", "1w", "1mn"}
)

// Ticket is a broker-side order or position identifier. The execution worker
// writes it as a JSON number, the API as a string; it always encodes as a
// string.
type Ticket string

func (t *Ticket) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Ticket(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "ticket must be a string or number")
	}
	*t = Ticket(n.String())
	return nil
}

func (t Ticket) String() string { return string(t) }

// TicketPtr returns a pointer to a ticket, or nil for an empty string.
func TicketPtr(s string) *Ticket {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t := Ticket(s)
	return &t
}

// SpotAdd is a scale-in sub-order attached to a pending order or a running
// trade. Once OrderID is set the broker has executed it and it must not
// change.
type SpotAdd struct {
	EntryPrice     float64  `json:"entry_price"`
	StopLoss       float64  `json:"stoploss"`
	TakeProfit     *float64 `json:"take_profit,omitempty"`
	RiskPercentage float64  `json:"risk_percentage"`
	OrderID        *Ticket  `json:"order_id"`
}

// Executed reports whether the broker has already placed this spot add.
func (s SpotAdd) Executed() bool {
	return s.OrderID != nil && *s.OrderID != ""
}

// PendingOrder is a trading instruction waiting to be filled by the broker.
type PendingOrder struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	EntryType      string    `json:"entry_type"`
	StartTime      string    `json:"start_time,omitempty"`
	TradeSetup     string    `json:"trade_setup"`
	OrderType      string    `json:"order_type"`
	CheckOn        []string  `json:"checkOn"`
	RiskPercentage float64   `json:"risk_percentage"`
	Price          *float64  `json:"price,omitempty"`
	StopLoss       *float64  `json:"stopLoss,omitempty"`
	TakeProfit     *float64  `json:"takeProfit,omitempty"`
	RemovalPrice   *float64  `json:"removalPrice,omitempty"`
	SlToUpdate     float64   `json:"slToUpdate"`
	TpToUpdate     float64   `json:"tpToUpdate"`
	OrderID        *Ticket   `json:"order_id"`
	Volume         *float64  `json:"volume"`
	SpotAdds       []SpotAdd `json:"spot_adds"`
}

// SpotAddInput is the caller-supplied shape of a spot add.
type SpotAddInput struct {
	EntryPrice     *float64 `json:"entry_price" validate:"required,finite,gte=0"`
	StopLoss       *float64 `json:"stoploss" validate:"required,finite,gte=0"`
	TakeProfit     *float64 `json:"take_profit,omitempty" validate:"omitempty,finite,gte=0"`
	RiskPercentage *float64 `json:"risk_percentage" validate:"required,finite,gte=0,lte=100"`
}

// SpotAdd converts validated input into a not-yet-executed spot add.
func (in SpotAddInput) SpotAdd() SpotAdd {
	return SpotAdd{
		EntryPrice:     *in.EntryPrice,
		StopLoss:       *in.StopLoss,
		TakeProfit:     in.TakeProfit,
		RiskPercentage: *in.RiskPercentage,
	}
}

// SpotAddPatch updates selected fields of an existing spot add.
type SpotAddPatch struct {
	EntryPrice     *float64 `json:"entry_price,omitempty" validate:"omitempty,finite,gte=0"`
	StopLoss       *float64 `json:"stoploss,omitempty" validate:"omitempty,finite,gte=0"`
	TakeProfit     *float64 `json:"take_profit,omitempty" validate:"omitempty,finite,gte=0"`
	RiskPercentage *float64 `json:"risk_percentage,omitempty" validate:"omitempty,finite,gte=0,lte=100"`
}

// Empty reports whether the patch changes nothing.
func (p SpotAddPatch) Empty() bool {
	return p.EntryPrice == nil && p.StopLoss == nil && p.TakeProfit == nil && p.RiskPercentage == nil
}

// Apply merges the patch over s. The broker order id is never touched.
func (p SpotAddPatch) Apply(s SpotAdd) SpotAdd {
	if p.EntryPrice != nil {
		s.EntryPrice = *p.EntryPrice
	}
	if p.StopLoss != nil {
		s.StopLoss = *p.StopLoss
	}
	if p.TakeProfit != nil {
		s.TakeProfit = p.TakeProfit
	}
	if p.RiskPercentage != nil {
		s.RiskPercentage = *p.RiskPercentage
	}
	return s
}

// NewOrderRequest is the input of addOrder.
type NewOrderRequest struct {
	ID             string         `json:"id,omitempty" validate:"omitempty,max=128,keysafe"`
	Symbol         string         `json:"symbol" validate:"required,max=64"`
	EntryType      string         `json:"entry_type" validate:"required,oneof=engulfing twoC BR"`
	StartTime      string         `json:"start_time,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TradeSetup     string         `json:"trade_setup" validate:"required,oneof=buy sell"`
	OrderType      string         `json:"order_type" validate:"required,oneof=limit stop"`
	CheckOn        []string       `json:"checkOn" validate:"required,min=1,unique,dive,oneof=1m 5m 15m 30m 1h 2h 4h 1d 1w 1mn"`
	RiskPercentage *float64       `json:"risk_percentage" validate:"required,finite,gte=0,lte=100"`
	Price          *float64       `json:"price,omitempty" validate:"omitempty,finite,gte=0"`
	StopLoss       *float64       `json:"stopLoss,omitempty" validate:"omitempty,finite,gte=0"`
	TakeProfit     *float64       `json:"takeProfit,omitempty" validate:"omitempty,finite,gte=0"`
	RemovalPrice   *float64       `json:"removalPrice,omitempty" validate:"omitempty,finite,gte=0"`
	SpotAdds       []SpotAddInput `json:"spot_adds,omitempty" validate:"omitempty,dive"`
}

// OrderPatch is the input of updatePendingOrder. spot_adds is deliberately
// absent: spot adds are managed through their own operations.
type OrderPatch struct {
	Symbol         *string  `json:"symbol,omitempty" validate:"omitempty,min=1,max=64"`
	EntryType      *string  `json:"entry_type,omitempty" validate:"omitempty,oneof=engulfing twoC BR"`
	StartTime      *string  `json:"start_time,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TradeSetup     *string  `json:"trade_setup,omitempty" validate:"omitempty,oneof=buy sell"`
	OrderType      *string  `json:"order_type,omitempty" validate:"omitempty,oneof=limit stop"`
	CheckOn        []string `json:"checkOn,omitempty" validate:"omitempty,min=1,unique,dive,oneof=1m 5m 15m 30m 1h 2h 4h 1d 1w 1mn"`
	RiskPercentage *float64 `json:"risk_percentage,omitempty" validate:"omitempty,finite,gte=0,lte=100"`
	Price          *float64 `json:"price,omitempty" validate:"omitempty,finite,gte=0"`
	StopLoss       *float64 `json:"stopLoss,omitempty" validate:"omitempty,finite,gte=0"`
	TakeProfit     *float64 `json:"takeProfit,omitempty" validate:"omitempty,finite,gte=0"`
	RemovalPrice   *float64 `json:"removalPrice,omitempty" validate:"omitempty,finite,gte=0"`
}
