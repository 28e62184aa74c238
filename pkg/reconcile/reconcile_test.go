package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

func mime(p string) string {
	if p == "/index.html" {
		return "text/html"
	}
	return "text/css"
}

func TestDiffFirstPublish(t *testing.T) {
	local := []api.FileEntry{
		{Path: "/index.html", Size: 15, Hash: "hash-index-1"},
		{Path: "/style.css", Size: 17, Hash: "hash-style-1"},
	}
	plan := Diff(local, nil, Presence{}, mime, Options{Servers: []string{"https://blossom.example"}})

	var uploads, manifests int
	for _, a := range plan.Actions {
		switch a.Kind {
		case api.ActionUploadBlob:
			uploads++
		case api.ActionPublishManifest:
			manifests++
		}
	}
	require.Equal(t, 2, uploads)
	require.Equal(t, 2, manifests)
}

func TestDiffIdempotentRepublish(t *testing.T) {
	local := []api.FileEntry{{Path: "/index.html", Size: 15, Hash: "h1"}}
	remote := []api.ManifestEntry{{Path: "/index.html", Hash: "h1", CreatedAt: 100, EventID: "e1"}}
	presence := Presence{"h1": {"https://blossom.example": true}}

	plan := Diff(local, remote, presence, mime, Options{Servers: []string{"https://blossom.example"}})
	require.True(t, plan.IsEmpty())
}

func TestDiffReplaceOneFile(t *testing.T) {
	local := []api.FileEntry{
		{Path: "/index.html", Size: 16, Hash: "h1-new"},
		{Path: "/style.css", Size: 17, Hash: "h2"},
	}
	remote := []api.ManifestEntry{
		{Path: "/index.html", Hash: "h1-old", CreatedAt: 100, EventID: "e1"},
		{Path: "/style.css", Hash: "h2", CreatedAt: 100, EventID: "e2"},
	}
	presence := Presence{"h1-old": {"s": true}, "h2": {"s": true}}

	plan := Diff(local, remote, presence, mime, Options{Servers: []string{"s"}})

	var manifestPaths []string
	var uploadHashes []string
	for _, a := range plan.Actions {
		switch a.Kind {
		case api.ActionPublishManifest:
			manifestPaths = append(manifestPaths, a.Path)
		case api.ActionUploadBlob:
			uploadHashes = append(uploadHashes, a.Hash)
		}
	}
	require.Equal(t, []string{"/index.html"}, manifestPaths)
	require.Equal(t, []string{"h1-new"}, uploadHashes)
}

func TestDiffTieBreakLargerEventIDWins(t *testing.T) {
	remote := []api.ManifestEntry{
		{Path: "/a", Hash: "old", CreatedAt: 100, EventID: "aaa"},
		{Path: "/a", Hash: "new", CreatedAt: 100, EventID: "zzz"},
	}
	latest := latestByPath(remote)
	require.Equal(t, "new", latest["/a"].Hash)
}

func TestDiffPurgeDeletesOrphans(t *testing.T) {
	local := []api.FileEntry{{Path: "/keep.html", Size: 1, Hash: "h-keep"}}
	remote := []api.ManifestEntry{
		{Path: "/keep.html", Hash: "h-keep", CreatedAt: 100, EventID: "e1"},
		{Path: "/gone.html", Hash: "h-gone", CreatedAt: 100, EventID: "e2"},
	}
	presence := Presence{"h-keep": {"s": true}, "h-gone": {"s": true}}

	plan := Diff(local, remote, presence, mime, Options{Servers: []string{"s"}, Purge: true})

	var deletedManifest, deletedBlob bool
	for _, a := range plan.Actions {
		if a.Kind == api.ActionDeleteManifest && a.Path == "/gone.html" {
			deletedManifest = true
		}
		if a.Kind == api.ActionDeleteBlob && a.Hash == "h-gone" {
			deletedBlob = true
		}
	}
	require.True(t, deletedManifest)
	require.True(t, deletedBlob)
}

func TestDiffEmptyInputProducesEmptyPlan(t *testing.T) {
	plan := Diff(nil, nil, Presence{}, mime, Options{})
	require.True(t, plan.IsEmpty())
}

func TestDiffActionOrderUploadsThenManifestsThenDeletes(t *testing.T) {
	local := []api.FileEntry{{Path: "/b", Size: 1, Hash: "hb"}, {Path: "/a", Size: 1, Hash: "ha"}}
	remote := []api.ManifestEntry{{Path: "/c", Hash: "hc", CreatedAt: 1, EventID: "e"}}
	presence := Presence{}

	plan := Diff(local, remote, presence, mime, Options{Servers: []string{"s"}, Purge: true})

	var sawManifest, sawDelete bool
	for _, a := range plan.Actions {
		switch a.Kind {
		case api.ActionUploadBlob:
			require.False(t, sawManifest, "uploads must precede manifests")
			require.False(t, sawDelete, "uploads must precede deletes")
		case api.ActionPublishManifest:
			sawManifest = true
			require.False(t, sawDelete, "manifests must precede deletes")
		case api.ActionDeleteBlob, api.ActionDeleteManifest:
			sawDelete = true
		}
	}
}
