package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nsyte-dev/nsyte/pkg/app"
)

func runInit(ctx context.Context, args []string) int {
	relays, blobServers := defaultInitTargets()
	state, err := app.Init(ctx, ".", app.InitOptions{Relays: relays, BlobServers: blobServers})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	fmt.Printf("initialised project for %s\n", state.PubKey)
	return exitOK
}

// defaultInitTargets is the placeholder target set `init` seeds a fresh
// project with; a full CLI would prompt for these interactively, which
// is explicitly out of scope here.
func defaultInitTargets() (relays, blobServers []string) {
	return []string{"wss://relay.nsyte.example"}, []string{"https://blossom.nsyte.example"}
}

func runUpload(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: nsyte upload <dir>")
		return exitInvalidArgs
	}
	a, err := app.Open(ctx, ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	defer a.Close()

	report, err := a.Upload(ctx, os.DirFS(args[0]), app.UploadOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	fmt.Printf("uploaded %d blobs, published %d manifests\n", report.BlobsUploaded, report.ManifestsPublish)
	if report.FailedQuorum() {
		return exitGenericFailure
	}
	return exitOK
}

func runDownload(ctx context.Context, args []string) int {
	a, err := app.Open(ctx, ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	defer a.Close()

	entries, err := a.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	fmt.Printf("%d published entries known; fetch-to-disk is left to the CLI collaborator\n", len(entries))
	return exitOK
}

func runList(ctx context.Context, args []string) int {
	a, err := app.Open(ctx, ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	defer a.Close()

	entries, err := a.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%d\n", e.Path, e.Hash, e.Size)
	}
	return exitOK
}

func runSites(ctx context.Context, args []string) int {
	a, err := app.Open(ctx, ".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	defer a.Close()

	fmt.Println("relays:")
	for _, r := range a.State.Relays {
		fmt.Println("  " + r)
	}
	fmt.Println("blob servers:")
	for _, s := range a.State.BlobServers {
		fmt.Println("  " + s)
	}
	return exitOK
}

func runCI(ctx context.Context, args []string) int {
	return runUpload(ctx, args)
}

func runBunker(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: nsyte bunker {list,connect,import,export,use,remove,migrate}")
		return exitInvalidArgs
	}
	switch args[0] {
	case "list":
		accounts, err := app.BunkerList(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		for _, acc := range accounts {
			fmt.Println(acc)
		}
		return exitOK
	case "connect":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nsyte bunker connect <bunker-uri>")
			return exitInvalidArgs
		}
		pubkey, err := app.BunkerConnect(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		fmt.Println(pubkey)
		return exitOK
	case "import":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: nsyte bunker import <pubkey> <credential-string>")
			return exitInvalidArgs
		}
		if err := app.BunkerImport(ctx, args[1], args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		return exitOK
	case "export":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nsyte bunker export <pubkey>")
			return exitInvalidArgs
		}
		credential, err := app.BunkerExport(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		fmt.Println(credential)
		return exitOK
	case "use":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nsyte bunker use <pubkey>")
			return exitInvalidArgs
		}
		if err := app.BunkerUse(ctx, ".", args[1]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		return exitOK
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nsyte bunker remove <pubkey>")
			return exitInvalidArgs
		}
		removed, err := app.BunkerRemove(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		if !removed {
			fmt.Fprintln(os.Stderr, "no such credential")
			return exitGenericFailure
		}
		return exitOK
	case "migrate":
		if err := app.BunkerMigrate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
		return exitOK
	default:
		fmt.Fprintln(os.Stderr, "unknown bunker subcommand: "+strings.Join(args, " "))
		return exitInvalidArgs
	}
}
