// Package reconcile computes the ordered plan of typed actions that
// turns local state L, remote manifest set R, and blob-presence map P
// into the uploads/publishes/deletes the executor must perform.
//
// It compares local state against a remote reference set the way a
// tree-diff walk would, generalised to three sets (local files, remote
// manifests, remote blob presence) instead of one.
package reconcile

import (
	"path"
	"sort"
	"strings"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// Presence maps hash -> set of servers known to hold that blob.
type Presence map[string]map[string]bool

// Has reports whether server is known to hold hash.
func (p Presence) Has(hash, server string) bool {
	servers, ok := p[hash]
	if !ok {
		return false
	}
	return servers[server]
}

// Options controls purge behaviour and the target server/relay sets.
type Options struct {
	Servers []string
	Relays  []string
	Purge   bool
}

// normalizePath enforces the leading-slash, no-./.. path rule.
func normalizePath(p string) string {
	cleaned := path.Clean("/" + strings.TrimPrefix(p, "/"))
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

// latestByPath picks the manifest entry that wins for each path,
// applying the tie-break rule: equal created_at, lexicographically
// larger event id wins.
func latestByPath(remote []api.ManifestEntry) map[string]api.ManifestEntry {
	out := make(map[string]api.ManifestEntry, len(remote))
	for _, m := range remote {
		p := normalizePath(m.Path)
		cur, ok := out[p]
		if !ok {
			out[p] = m
			continue
		}
		if m.CreatedAt > cur.CreatedAt {
			out[p] = m
		} else if m.CreatedAt == cur.CreatedAt && m.EventID > cur.EventID {
			out[p] = m
		}
	}
	return out
}

// Diff computes the plan for one publish pass. local is the scanned +
// hashed file set; remote is every known manifest event (any path, any
// age — latestByPath resolves which one is current); presence is the
// per-hash, per-server HEAD probe result; mimeOf resolves a path to its
// contract MIME type (pkg/scanner.DetectMime).
func Diff(local []api.FileEntry, remote []api.ManifestEntry, presence Presence, mimeOf func(string) string, opts Options) api.Plan {
	latest := latestByPath(remote)
	localByPath := make(map[string]api.FileEntry, len(local))
	for _, f := range local {
		localByPath[normalizePath(f.Path)] = f
	}

	var uploads []api.Action
	var manifests []api.Action
	var deletes []api.Action

	neededHashes := make(map[string]bool)
	for _, f := range local {
		neededHashes[f.Hash] = true
	}

	for _, f := range local {
		p := normalizePath(f.Path)
		if m, ok := latest[p]; ok && m.Hash == f.Hash {
			continue // unchanged
		}
		manifests = append(manifests, api.Action{
			Kind:    api.ActionPublishManifest,
			Hash:    f.Hash,
			Path:    p,
			Size:    f.Size,
			Mime:    mimeOf(p),
			Servers: append([]string(nil), opts.Servers...),
		})
	}

	hashesNeedingUpload := make(map[string]bool)
	for _, f := range local {
		for _, server := range opts.Servers {
			if presence.Has(f.Hash, server) {
				continue
			}
			hashesNeedingUpload[f.Hash] = true
		}
	}
	for hash := range hashesNeedingUpload {
		var missing []string
		for _, server := range opts.Servers {
			if !presence.Has(hash, server) {
				missing = append(missing, server)
			}
		}
		sort.Strings(missing)
		uploads = append(uploads, api.Action{Kind: api.ActionUploadBlob, Hash: hash, Servers: missing})
	}

	if opts.Purge {
		for hash, servers := range presence {
			if neededHashes[hash] {
				continue
			}
			var holders []string
			for s := range servers {
				holders = append(holders, s)
			}
			sort.Strings(holders)
			if len(holders) > 0 {
				deletes = append(deletes, api.Action{Kind: api.ActionDeleteBlob, Hash: hash, Servers: holders})
			}
		}
		for p := range latest {
			if _, ok := localByPath[p]; !ok {
				deletes = append(deletes, api.Action{Kind: api.ActionDeleteManifest, Path: p})
			}
		}
	}

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Hash < uploads[j].Hash })
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Path < manifests[j].Path })
	sort.Slice(deletes, func(i, j int) bool {
		if deletes[i].Kind != deletes[j].Kind {
			return deletes[i].Kind < deletes[j].Kind
		}
		if deletes[i].Hash != deletes[j].Hash {
			return deletes[i].Hash < deletes[j].Hash
		}
		return deletes[i].Path < deletes[j].Path
	})

	actions := make([]api.Action, 0, len(uploads)+len(manifests)+len(deletes))
	actions = append(actions, uploads...)
	actions = append(actions, manifests...)
	actions = append(actions, deletes...)
	return api.Plan{Actions: actions}
}
