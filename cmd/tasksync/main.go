// Command tasksync is an offline-first task list that syncs with a remote
// authority.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tasksync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Reported {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
