package main

import (
	"context"
	"os/signal"
	"syscall"

	relay "github.com/caseflow/relay/app"
)

func main() {
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	app := relay.New(ctx, nil)
	app.Start()
}
