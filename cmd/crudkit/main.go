// Command crudkit serves declarative CRUD procedures over SQLite.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/crudkit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "crudkit:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
