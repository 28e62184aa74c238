package app

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/blobclient"
	"github.com/nsyte-dev/nsyte/pkg/event"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
	"github.com/nsyte-dev/nsyte/pkg/reconcile"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/scanner"
)

// UploadOptions controls one `upload <dir>` invocation.
type UploadOptions struct {
	Matcher scanner.Matcher
	Purge   bool
}

// Upload scans localDir, diffs it against the currently published
// manifest set and blob presence, and runs the resulting plan to
// completion end to end.
func (a *App) Upload(ctx context.Context, localDir fs.FS, opts UploadOptions) (*api.Report, error) {
	entries, err := scanner.Scan(localDir, opts.Matcher)
	if err != nil {
		return nil, fmt.Errorf("app: scan: %w", err)
	}

	localFiles := make([]api.FileEntry, 0, len(entries))
	bytesByHash := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		raw, err := fs.ReadFile(localDir, relPath(entry.Path))
		if err != nil {
			return nil, fmt.Errorf("app: read %s: %w", entry.Path, err)
		}
		hash := hasher.Sum256Hex(raw)
		localFiles = append(localFiles, api.FileEntry{Path: entry.Path, Size: entry.Size, Hash: hash})
		bytesByHash[hash] = raw
	}

	remoteManifests, err := a.fetchManifests(ctx)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(localFiles))
	for _, f := range localFiles {
		hashes = append(hashes, f.Hash)
	}
	presence := a.probePresence(ctx, hashes)

	plan := reconcile.Diff(localFiles, remoteManifests, presence, scanner.DetectMime, reconcile.Options{
		Servers: serverKeys(a.Blobs),
		Relays:  a.State.Relays,
		Purge:   opts.Purge,
	})

	blobSource := func(hash string) ([]byte, error) {
		raw, ok := bytesByHash[hash]
		if !ok {
			return nil, api.NewError(api.ErrKindMalformed, "app.Upload", fmt.Errorf("no local content for hash %s", hash))
		}
		return raw, nil
	}

	return a.Executor.Run(ctx, plan, blobSource)
}

// relPath strips the leading slash scanner.Entry.Path carries, matching
// the fs.FS-relative form fs.ReadFile expects.
func relPath(sitePath string) string {
	if len(sitePath) > 0 && sitePath[0] == '/' {
		return sitePath[1:]
	}
	return sitePath
}

// List returns the currently published manifest entries for this
// author, one per live path (the `ls` command).
func (a *App) List(ctx context.Context) ([]api.ManifestEntry, error) {
	manifests, err := a.fetchManifests(ctx)
	if err != nil {
		return nil, err
	}
	latestIdx := make(map[string]int, len(manifests))
	var out []api.ManifestEntry
	for _, m := range manifests {
		i, ok := latestIdx[m.Path]
		if !ok {
			latestIdx[m.Path] = len(out)
			out = append(out, m)
			continue
		}
		if cur := out[i]; m.CreatedAt > cur.CreatedAt || (m.CreatedAt == cur.CreatedAt && m.EventID > cur.EventID) {
			out[i] = m
		}
	}
	return out, nil
}

// fetchManifests subscribes for every manifest event this author has
// published across the project's read relays, collecting until EOSE
// from every relay or a fixed timeout elapses.
func (a *App) fetchManifests(ctx context.Context) ([]api.ManifestEntry, error) {
	pubkey := a.Signer.PublicKey()
	filter := relay.Filter{Authors: []string{pubkey}, Kinds: []int{int(api.KindManifest)}}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sub, err := a.RelayPool.Subscribe(fetchCtx, a.State.Relays, []relay.Filter{filter})
	if err != nil {
		return nil, api.NewError(api.ErrKindTransient, "app.fetchManifests", err)
	}
	defer sub.Close()

	// Inbound carries no per-relay origin tag, only the shared sub_id, so
	// completion is counted by EOSE arrivals rather than by relay
	// identity: each subscribed relay sends exactly one EOSE for this
	// REQ.
	eoseRemaining := len(a.State.Relays)

	var manifests []api.ManifestEntry
	for {
		select {
		case <-fetchCtx.Done():
			return manifests, nil
		case msg, ok := <-sub.Out:
			if !ok {
				return manifests, nil
			}
			switch msg.Kind {
			case relay.InboundEvent:
				if entry, ok := event.ToManifestEntry(msg.Event); ok {
					manifests = append(manifests, entry)
				}
			case relay.InboundEOSE:
				eoseRemaining--
				if eoseRemaining <= 0 {
					return manifests, nil
				}
			}
		}
	}
}

// probePresence HEAD-checks every (hash, server) pair concurrently.
func (a *App) probePresence(ctx context.Context, hashes []string) reconcile.Presence {
	presence := reconcile.Presence{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, hash := range hashes {
		for server, backend := range a.Blobs {
			wg.Add(1)
			go func(hash, server string, backend blobclient.Backend) {
				defer wg.Done()
				present, err := backend.Head(ctx, hash)
				if err != nil || !present {
					return
				}
				mu.Lock()
				if presence[hash] == nil {
					presence[hash] = map[string]bool{}
				}
				presence[hash][server] = true
				mu.Unlock()
			}(hash, server, backend)
		}
	}
	wg.Wait()
	return presence
}

func serverKeys(m map[string]blobclient.Backend) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
