package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/field-workshops/labkit/internal/commands"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &commands.GlobalOptions{}
	rootCmd := commands.NewRootCommand(version, opts)
	err := rootCmd.ExecuteContext(ctx)
	if cerr := opts.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
