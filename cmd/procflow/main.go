// Command procflow runs the document process engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/SacredTexts/huly/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
