package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"

	"github.com/rand/rlm/internal/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := fang.Execute(ctx, cmd.NewRootCmd()); err != nil {
		os.Exit(1)
	}
}
