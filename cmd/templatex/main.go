// Command templatex packs, signs and extracts template archives.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/meigma/templatex/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
