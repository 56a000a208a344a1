package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/models"
)

func f(v float64) *float64 { return &v }

func validOrder() models.NewOrderRequest {
	return models.NewOrderRequest{
		Symbol:         "EURUSD",
		EntryType:      "BR",
		TradeSetup:     "buy",
		OrderType:      "limit",
		CheckOn:        []string{"1h"},
		RiskPercentage: f(1),
	}
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, apperr.KindValidation, e.Kind)
	names := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		names = append(names, fe.Field)
	}
	return names
}

func TestValidOrderPasses(t *testing.T) {
	assert.NoError(t, New().Struct(validOrder()))
}

func TestOrderShapeRules(t *testing.T) {
	v := New()

	cases := []struct {
		name   string
		mutate func(o *models.NewOrderRequest)
		field  string
	}{
		{"missing symbol", func(o *models.NewOrderRequest) { o.Symbol = "" }, "symbol"},
		{"unknown entry type", func(o *models.NewOrderRequest) { o.EntryType = "breakout" }, "entry_type"},
		{"unknown setup", func(o *models.NewOrderRequest) { o.TradeSetup = "hold" }, "trade_setup"},
		{"unknown order type", func(o *models.NewOrderRequest) { o.OrderType = "market" }, "order_type"},
		{"empty checkOn", func(o *models.NewOrderRequest) { o.CheckOn = []string{} }, "checkOn"},
		{"bad timeframe", func(o *models.NewOrderRequest) { o.CheckOn = []string{"3h"} }, "checkOn[0]"},
		{"duplicate timeframe", func(o *models.NewOrderRequest) { o.CheckOn = []string{"1h", "1h"} }, "checkOn"},
		{"risk above 100", func(o *models.NewOrderRequest) { o.RiskPercentage = f(100.5) }, "risk_percentage"},
		{"missing risk", func(o *models.NewOrderRequest) { o.RiskPercentage = nil }, "risk_percentage"},
		{"negative price", func(o *models.NewOrderRequest) { o.Price = f(-1) }, "price"},
		{"nan stop loss", func(o *models.NewOrderRequest) { o.StopLoss = f(math.NaN()) }, "stopLoss"},
		{"infinite take profit", func(o *models.NewOrderRequest) { o.TakeProfit = f(math.Inf(1)) }, "takeProfit"},
		{"id with separator", func(o *models.NewOrderRequest) { o.ID = "a:b" }, "id"},
		{"bad start time", func(o *models.NewOrderRequest) { o.StartTime = "tomorrow" }, "start_time"},
		{"negative spot entry", func(o *models.NewOrderRequest) {
			o.SpotAdds = []models.SpotAddInput{{EntryPrice: f(-1), StopLoss: f(1), RiskPercentage: f(1)}}
		}, "spot_adds[0].entry_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := validOrder()
			tc.mutate(&o)
			assert.Contains(t, fieldNames(t, v.Struct(o)), tc.field)
		})
	}
}

func TestZeroIsAValidPrice(t *testing.T) {
	o := validOrder()
	o.Price = f(0)
	o.RiskPercentage = f(0)
	assert.NoError(t, New().Struct(o))
}

func TestAliasMapRejectsBlankEntries(t *testing.T) {
	v := New()
	ok := models.AliasesRequest{SlaveAccount: "5001", Aliases: models.AliasMap{"GOLD": {"XAUUSD", "XAUUSD.m"}}}
	assert.NoError(t, v.Struct(ok))

	bad := models.AliasesRequest{SlaveAccount: "5001", Aliases: models.AliasMap{"GOLD": {" "}}}
	assert.True(t, apperr.IsKind(v.Struct(bad), apperr.KindValidation))
}

func TestMultiplierRange(t *testing.T) {
	v := New()
	req := models.MultiplierRequest{MasterAccount: "1", SlaveAccount: "2"}
	for _, m := range []float64{0, -1, 100.01} {
		req.Multiplier = f(m)
		assert.Contains(t, fieldNames(t, v.Struct(req)), "multiplier", "multiplier %v", m)
	}
	req.Multiplier = f(100)
	assert.NoError(t, v.Struct(req))
}
