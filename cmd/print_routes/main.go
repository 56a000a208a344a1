package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/api"
	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/store"
)

// print_routes lists every route the server registers. Nothing is
// connected; the router is only walked.
func main() {
	cfg := config.Load()
	logger := zap.NewNop()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	router := api.SetupRouter(nil, store.New(rdb, logger), cfg, logger)

	fmt.Println("=== Registered Routes ===")
	fmt.Println("METHOD\tPATH")
	fmt.Println("-------------------------------")
	if err := api.WriteRoutes(os.Stdout, router); err != nil {
		log.Fatal(err)
	}
	fmt.Println("==============================")
}
