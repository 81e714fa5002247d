// Command docqa is the entry point for the docqa document library. It keeps
// a local library of PDF and text documents and retrieves the fragments most
// relevant to a question, lexically or by embedding similarity.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
