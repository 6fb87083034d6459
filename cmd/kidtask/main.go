package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/kidtask/internal/logging"
	"github.com/dukerupert/kidtask/internal/server"
	"github.com/dukerupert/kidtask/internal/store"
)

func main() {
	// Best-effort: a .env file is optional.
	godotenv.Load()

	port := os.Getenv("KIDTASK_PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := os.Getenv("KIDTASK_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logger := logging.Setup(os.Getenv("KIDTASK_LOG_LEVEL"))

	st, err := store.Open(dataDir, logger.With("component", "store"))
	if err != nil {
		log.Fatalf("failed to open data store: %v", err)
	}

	srv := server.New(st, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Periodically drop expired rate-limit entries.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	go func() {
		fmt.Printf("KidTask running at http://localhost:%s (data in %s)\n", port, st.Dir())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
