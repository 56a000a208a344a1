package models

// RunningTrade is an open position resulting from a filled order.
type RunningTrade struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	EntryType         string    `json:"entry_type,omitempty"`
	StartTime         string    `json:"start_time,omitempty"`
	TradeSetup        string    `json:"trade_setup"`
	OrderType         string    `json:"order_type,omitempty"`
	CheckOn           []string  `json:"checkOn,omitempty"`
	RiskPercentage    float64   `json:"risk_percentage"`
	Price             *float64  `json:"price,omitempty"`
	StopLoss          *float64  `json:"stopLoss,omitempty"`
	TakeProfit        *float64  `json:"takeProfit,omitempty"`
	SlToUpdate        *float64  `json:"slToUpdate,omitempty"`
	TpToUpdate        *float64  `json:"tpToUpdate,omitempty"`
	BreakevenPrice    *float64  `json:"breakevenPrice,omitempty"`
	PartialClosePrice *float64  `json:"partialClosePrice,omitempty"`
	LotToClose        *float64  `json:"lotToClose,omitempty"`
	VolumeToClose     *float64  `json:"volumeToClose,omitempty"`
	OrderID           *Ticket   `json:"order_id"`
	Volume            float64   `json:"volume"`
	SpotAdds          []SpotAdd `json:"spot_adds"`
}

// NewTradeRequest is the input of CreateTrade.
type NewTradeRequest struct {
	ID             string         `json:"id,omitempty" validate:"omitempty,max=128,keysafe"`
	Symbol         string         `json:"symbol" validate:"required,max=64"`
	EntryType      string         `json:"entry_type,omitempty" validate:"omitempty,oneof=engulfing twoC BR"`
	TradeSetup     string         `json:"trade_setup" validate:"required,oneof=buy sell"`
	OrderType      string         `json:"order_type,omitempty" validate:"omitempty,oneof=limit stop"`
	CheckOn        []string       `json:"checkOn,omitempty" validate:"omitempty,unique,dive,oneof=1m 5m 15m 30m 1h 2h 4h 1d 1w 1mn"`
	RiskPercentage *float64       `json:"risk_percentage" validate:"required,finite,gte=0,lte=100"`
	Price          *float64       `json:"price,omitempty" validate:"omitempty,finite,gte=0"`
	StopLoss       *float64       `json:"stopLoss,omitempty" validate:"omitempty,finite,gte=0"`
	TakeProfit     *float64       `json:"takeProfit,omitempty" validate:"omitempty,finite,gte=0"`
	OrderID        string         `json:"order_id,omitempty" validate:"omitempty,max=64"`
	Volume         *float64       `json:"volume" validate:"required,finite,gt=0"`
	SpotAdds       []SpotAddInput `json:"spot_adds,omitempty" validate:"omitempty,dive"`
}

// SlTpBreakeven carries the optional stop-loss, take-profit and breakeven
// adjustments of a running trade. At least one must be present.
type SlTpBreakeven struct {
	SlToUpdate     *float64 `json:"slToUpdate,omitempty" validate:"omitempty,finite,gte=0"`
	TpToUpdate     *float64 `json:"tpToUpdate,omitempty" validate:"omitempty,finite,gte=0"`
	BreakevenPrice *float64 `json:"breakevenPrice,omitempty" validate:"omitempty,finite,gte=0"`
}

// PartialClose carries a partial close request.
type PartialClose struct {
	Price *float64 `json:"partialClosePrice,omitempty" validate:"omitempty,finite,gte=0"`
	Lot   *float64 `json:"lotToClose,omitempty" validate:"omitempty,finite,gt=0"`
}

// ExecutedOrder is one entry of the worker's append-only execution log. Its
// shape is owned by the worker, so it is kept as raw JSON fields.
type ExecutedOrder map[string]interface{}

// VolumeToClose carries the volume the worker should close on a trade.
type VolumeToClose struct {
	Volume *float64 `json:"volumeToClose" validate:"required,finite,gte=0"`
}
