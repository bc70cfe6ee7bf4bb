// Command tether compiles record schemas, runs binding scenarios and
// inspects journal-backed record sources.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/tether/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
