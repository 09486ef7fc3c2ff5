// Command raffleledger serves the raffle bookkeeping ledger over HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"raffleledger/internal/cmd/raffleledger"
	"raffleledger/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := raffleledger.Run(ctx, cfg); err != nil {
		log.Fatalf("raffleledger: %v", err)
	}
}
