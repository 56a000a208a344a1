package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/api"
	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/db"
	"github.com/vikasavnish/botbridge/internal/logger"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize configuration
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	defer log.Sync()
	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	// Initialize database connection
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Initialize Redis client
	redisClient, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	st := store.New(redisClient, log, store.WithMaxAttempts(cfg.Redis.SpotMaxAttempts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go st.Monitor(ctx, cfg.Redis.HealthInterval)

	// Initialize scheduled tasks
	taskManager := tasks.NewManager(st, cfg.Queue, log)
	taskManager.StartScheduledTasks()
	defer taskManager.StopAllTasks()

	// Initialize router
	router := api.SetupRouter(database, st, cfg, log)

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Allow all origins for API access
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsMiddleware.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
