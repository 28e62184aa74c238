// Command nsyte is the thin CLI entrypoint dispatching to pkg/app's
// operations. Flag parsing here is the bare minimum
// needed to drive pkg/app — rich flag/help text, colour output, and
// interactive wizards are explicitly out of scope.
//
// A top-level switch on os.Args[1] routes to one function per
// subcommand.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nsyte-dev/nsyte/pkg/app"
)

const usage = `Usage: nsyte [COMMAND] [ARGS...]

Commands:
  init                  initialise a project in the current directory
  upload <dir>          scan, diff, and publish <dir> against the project's relays/servers
  download              report how many published entries are known (writes no files)
  ls                    list currently published paths
  sites                 list the project's configured relays and blob servers
  bunker <subcommand>   list, connect, import, export, use, remove, migrate credentials
  ci                    run upload with the same arguments and credentials as upload`

// Exit codes: 0 success, 1 generic failure, 2 invalid
// arguments, 3 no credentials available, 4 remote-signer unreachable.
const (
	exitOK                = 0
	exitGenericFailure    = 1
	exitInvalidArgs       = 2
	exitNoCredentials     = 3
	exitSignerUnreachable = 4
)

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return exitInvalidArgs
	}

	switch args[1] {
	case "init":
		return runInit(ctx, args[2:])
	case "upload":
		return runUpload(ctx, args[2:])
	case "download":
		return runDownload(ctx, args[2:])
	case "ls":
		return runList(ctx, args[2:])
	case "sites":
		return runSites(ctx, args[2:])
	case "bunker":
		return runBunker(ctx, args[2:])
	case "ci":
		return runCI(ctx, args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		return exitInvalidArgs
	}
}

// exitCodeFor maps a pkg/app error to the exit-code contract.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	kind := app.ClassifyExitError(err)
	switch kind {
	case app.ExitNoCredentials:
		return exitNoCredentials
	case app.ExitSignerUnreachable:
		return exitSignerUnreachable
	case app.ExitInvalidArgs:
		return exitInvalidArgs
	default:
		return exitGenericFailure
	}
}
