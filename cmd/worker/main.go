package main

import (
	"CloudKeep/config"
	"CloudKeep/internal/storage"
	"CloudKeep/internal/worker"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	config.InitConfig()
	storage.InitMinio()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("cleanup worker started")
	if err := worker.RunCleanupWorker(ctx); err != nil {
		log.Fatalf("cleanup worker stopped: %v", err)
	}
}
