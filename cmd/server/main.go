package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harshadakardil/CryptoCrash/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	go func() {
		if err := srv.Listen(":" + srv.Port()); err != nil {
			log.Fatalf("[SERVER] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("[SERVER] shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(ctx); err != nil {
		log.Printf("[SERVER] fiber shutdown: %v", err)
	}

	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] component shutdown: %v", err)
	}

	log.Println("[SERVER] stopped")
}
