package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
)

type testServer struct {
	router *mux.Router
	mr     *miniredis.Miniredis
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Account{}))

	hashed, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{Username: "trader", HashedPassword: string(hashed)}).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWT:     config.JWTConfig{SecretKey: []byte("test-secret"), TTL: time.Hour},
		Gateway: config.GatewayConfig{TickInterval: time.Second, SessionTTL: time.Minute},
	}
	s := &testServer{router: SetupRouter(db, store.New(rdb, zap.NewNop()), cfg, zap.NewNop()), mr: mr}

	rec := s.do(t, http.MethodPost, "/api/login", `{"username":"trader","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	s.token = tok.AccessToken
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	rec := s.do(t, http.MethodPost, "/api/login", `{"username":"trader","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/login", `{"username":"trader"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	s.token = "garbage"
	rec = s.do(t, http.MethodGet, "/api/bot/orders?accountNumber=5001", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/accounts", `{"accountNumber":"5001","broker":"ctrader"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/bot/orders?accountNumber=9999", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	rec = s.do(t, http.MethodPost, "/api/bot/orders", `{
		"accountNumber": "5001",
		"id": "o-1",
		"symbol": "EURUSD",
		"entry_type": "BR",
		"trade_setup": "buy",
		"order_type": "limit",
		"checkOn": ["1h"],
		"risk_percentage": 1,
		"stopLoss": 1.05
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/bot/orders", `{"accountNumber":"5001","symbol":"EURUSD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["fields"])

	rec = s.do(t, http.MethodPost, "/api/bot/orders", `{"accountNumber":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/bot/orders?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode(t, rec)["data"].([]interface{})
	require.Len(t, orders, 1)
	assert.Equal(t, 1.05, orders[0].(map[string]interface{})["slToUpdate"])

	rec = s.do(t, http.MethodPost, "/api/bot/orders/o-1/spot-adds", `{"accountNumber":"5001","entry_price":1.1,"stoploss":1.09,"risk_percentage":0.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/bot/orders/o-1/spot-adds/x", `{"accountNumber":"5001","entry_price":1.2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/bot/orders/o-1/spot-adds/3", `{"accountNumber":"5001","entry_price":1.2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/bot/orders/o-1?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/bot/orders/o-1?accountNumber=5001", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueRoutes(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/accounts", `{"accountNumber":"5001"}`).Code)

	rec := s.do(t, http.MethodPost, "/api/bot/orders-to-delete", `{"accountNumber":"5001","orderTicket":123456}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/bot/orders-to-delete", `{"accountNumber":"5001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/bot/delete-queue?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{"123456"}, data["orders"])

	rec = s.do(t, http.MethodGet, "/api/bot/stream-status?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, status["streaming"])

	// Another user streaming an account with the same number is not visible.
	expiry := float64(time.Now().Add(time.Minute).UnixMilli())
	other, err := keyspace.New(2, "5001")
	require.NoError(t, err)
	_, err = s.mr.ZAdd(other.Sessions(), expiry, "other-session")
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/bot/stream-status?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["data"].(map[string]interface{})["streaming"])

	own, err := keyspace.New(1, "5001")
	require.NoError(t, err)
	_, err = s.mr.ZAdd(own.Sessions(), expiry, "own-session")
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/bot/stream-status?accountNumber=5001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status = decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, status["streaming"])
	assert.Equal(t, 1.0, status["sessions"])
}

func TestCopyTradeRoutes(t *testing.T) {
	s := newTestServer(t)
	for _, acc := range []string{"m1", "s1"} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/accounts", `{"accountNumber":"`+acc+`"}`).Code)
	}

	rec := s.do(t, http.MethodPost, "/api/copy-trade/link-slave", `{"masterAccount":"m1","slaveAccount":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/copy-trade/link-slave", `{"masterAccount":"m1","slaveAccount":"m1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/copy-trade/get-slaves?masterAccount=m1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"s1"}, decode(t, rec)["data"])

	rec = s.do(t, http.MethodGet, "/api/copy-trade/get-slave-config?masterAccount=m1&slaveAccount=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"paused": false, "multiplier": 1.0}, decode(t, rec)["data"])
}

func TestWriteRoutes(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	require.NoError(t, WriteRoutes(&buf, s.router))
	out := buf.String()
	for _, line := range []string{
		"POST\t/api/login",
		"GET\t/api/bot/orders",
		"DELETE\t/api/bot/running-trades/{id}",
		"POST\t/api/copy-trade/create-master",
	} {
		assert.True(t, strings.Contains(out, line), line)
	}
}

func TestCurrentUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/users/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "trader", user["username"])
	assert.NotContains(t, user, "hashed_password")

	rec = s.do(t, http.MethodPost, "/api/users", `{"username":"second","password":"long-enough"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
