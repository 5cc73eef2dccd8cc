package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcrosbie/agentforge/internal/client"
	"github.com/bcrosbie/agentforge/internal/dashboard"
)

func main() {
	cfg, _, err := client.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dashboard.Run(ctx, c); err != nil {
		log.Fatalf("%v", err)
	}
}
