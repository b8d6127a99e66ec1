package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"processhub_backend/internal/tenantctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tenantctl.Execute(ctx, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
