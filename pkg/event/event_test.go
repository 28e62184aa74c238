package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

func TestCanonicalIsDeterministicAndOrderSensitive(t *testing.T) {
	tags := api.Tags{{"d", "/a"}, {"x", "deadbeef"}}
	first := Canonical("pub", 100, api.KindManifest, tags, "")
	second := Canonical("pub", 100, api.KindManifest, tags, "")
	require.Equal(t, first, second)
	require.Equal(t, `[0,"pub",100,31337,[["d","/a"],["x","deadbeef"]],""]`, first)
}

func TestCanonicalEscapesControlCharacters(t *testing.T) {
	out := Canonical("p", 1, api.KindManifest, nil, "line\nbreak\tquote\"")
	require.Equal(t, `[0,"p",1,31337,[],"line\nbreak\tquote\""]`, out)
}

func TestIDIsStableForIdenticalInput(t *testing.T) {
	tags := api.Tags{{"d", "/a"}}
	id1 := ID("pub", 1, api.KindManifest, tags, "")
	id2 := ID("pub", 1, api.KindManifest, tags, "")
	require.Equal(t, id1, id2)
	require.Len(t, id1, 64)
}

func TestIDChangesWithTags(t *testing.T) {
	id1 := ID("pub", 1, api.KindManifest, api.Tags{{"d", "/a"}}, "")
	id2 := ID("pub", 1, api.KindManifest, api.Tags{{"d", "/b"}}, "")
	require.NotEqual(t, id1, id2)
}

func TestManifestDraftAndToManifestEntryRoundTrip(t *testing.T) {
	draft := ManifestDraft("/index.html", "deadbeef", "text/html", 42, 1000)
	ev := api.Event{
		ID:        "event-id",
		PubKey:    "pub",
		CreatedAt: draft.CreatedAt,
		Kind:      draft.Kind,
		Tags:      draft.Tags,
		Content:   draft.Content,
		Sig:       "sig",
	}

	entry, ok := ToManifestEntry(ev)
	require.True(t, ok)
	require.Equal(t, "/index.html", entry.Path)
	require.Equal(t, "deadbeef", entry.Hash)
	require.Equal(t, "text/html", entry.MimeType)
	require.Equal(t, int64(42), entry.Size)
	require.Equal(t, "event-id", entry.EventID)
	require.Equal(t, int64(1000), entry.CreatedAt)
}

func TestToManifestEntryRequiresDAndXTags(t *testing.T) {
	_, ok := ToManifestEntry(api.Event{Tags: api.Tags{{"m", "text/html"}}})
	require.False(t, ok)
}

func TestBlobAuthDraftCarriesActionAndExpiry(t *testing.T) {
	draft := BlobAuthDraft("upload", "deadbeef", 2000, 1000)
	require.Equal(t, api.KindBlobAuth, draft.Kind)
	action, ok := draft.Tags.Find("t")
	require.True(t, ok)
	require.Equal(t, "upload", action)
	exp, ok := draft.Tags.Find("expiration")
	require.True(t, ok)
	require.Equal(t, "2000", exp)
}
