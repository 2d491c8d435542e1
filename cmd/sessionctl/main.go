// Command sessionctl drives an authsession client from the shell: log in,
// inspect the stored identity, call protected endpoints and manage the
// account.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	rootCmd := BuildRootCmd()
	go func() {
		sig := <-c
		switch sig {
		case syscall.SIGINT:
			rootCmd.PrintErrln("\nShutting down... (press Ctrl+C again to force)")
		default:
			rootCmd.PrintErrf("Received %s, shutting down...\n", sig.String())
		}
		cancel()
		<-c
		os.Exit(1)
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
