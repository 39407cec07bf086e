package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/bootstrap"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/contextkeys"
)

func main() {
	// Cancelling ctx on SIGINT/SIGTERM stops the config watchers and the reaper along with the server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "app-main")

	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		// The main logger isn't available yet.
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		fmt.Printf("Application run failed: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	fmt.Println("Application exited gracefully.")
}
