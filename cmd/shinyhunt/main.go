// Command shinyhunt automates shiny hunting on a console wired to GPIO buttons.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/shinyhunt/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
