package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/handlers"
	"github.com/vikasavnish/botbridge/internal/middleware"
	"github.com/vikasavnish/botbridge/internal/services"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
	"github.com/vikasavnish/botbridge/internal/websocket"
)

// SetupRouter configures all routes and returns the router
func SetupRouter(
	db *gorm.DB,
	st *store.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *mux.Router {
	// Create a new router
	router := mux.NewRouter()

	validate := validation.New()

	// Create services
	authService := services.NewAuthService(db, cfg.JWT.SecretKey, cfg.JWT.TTL)
	accountService := services.NewAccountService(db)
	userService := services.NewUserService(db, validate)
	orderService := services.NewOrderService(st, validate, logger)
	tradeService := services.NewRunningTradeService(st, validate, logger)
	copyTradeService := services.NewCopyTradeService(st, accountService, validate, logger)
	snapshotService := services.NewSnapshotService(st, orderService, tradeService)
	deletionQueue := services.NewDeletionQueue(st, logger)
	sessions := store.NewSessionRegistry(st)

	// Create handlers using services
	authHandler := handlers.NewAuthHandler(authService, validate, logger)
	accountHandler := handlers.NewAccountHandler(accountService, validate, logger)
	userHandler := handlers.NewUserHandler(userService, logger)
	orderHandler := handlers.NewOrderHandler(orderService, accountService, logger)
	tradeHandler := handlers.NewRunningTradeHandler(tradeService, accountService, logger)
	queueHandler := handlers.NewQueueHandler(deletionQueue, sessions, accountService, logger)
	copyTradeHandler := handlers.NewCopyTradeHandler(copyTradeService, logger)
	gateway := websocket.NewGateway(st, snapshotService, authService, accountService, sessions, cfg.Gateway, logger)

	// Public endpoints (no authentication required)
	router.HandleFunc("/api/health", NewHealthHandler(st)).Methods("GET")
	router.HandleFunc("/api/login", authHandler.Login).Methods("POST")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// WebSocket route; authenticates through its query string
	router.HandleFunc("/ws", gateway.HandleWebSocket)

	// Create the API router for authenticated endpoints
	apiRouter := router.PathPrefix("/api").Subrouter()

	// Create a subrouter for authenticated endpoints
	authRouter := apiRouter.PathPrefix("").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(authService))

	// Register routes
	userHandler.RegisterRoutes(authRouter)
	accountHandler.RegisterRoutes(authRouter)
	orderHandler.RegisterRoutes(authRouter)
	tradeHandler.RegisterRoutes(authRouter)
	queueHandler.RegisterRoutes(authRouter)
	copyTradeHandler.RegisterRoutes(authRouter)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"route not found"}`))
	})

	return router
}
