package event

import (
	"strconv"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
)

// ID computes the SHA-256 event id over the canonical serialisation,
// following the NIP-01 event-id algorithm.
func ID(pubkey string, createdAt int64, kind api.EventKind, tags api.Tags, content string) string {
	return hasher.Sum256Hex([]byte(Canonical(pubkey, createdAt, kind, tags, content)))
}

// ManifestDraft builds a manifest event's EventDraft for one (path, hash) mapping.
func ManifestDraft(path, hash, mime string, size int64, createdAt int64) api.EventDraft {
	return api.EventDraft{
		CreatedAt: createdAt,
		Kind:      api.KindManifest,
		Content:   "",
		Tags: api.Tags{
			{"d", path},
			{"x", hash},
			{"m", mime},
			{"size", strconv.FormatInt(size, 10)},
		},
	}
}

// BlobAuthDraft builds an upload/delete authorisation event draft
// ("Authorisation events").
func BlobAuthDraft(action, hash string, expiresAt, createdAt int64) api.EventDraft {
	return api.EventDraft{
		CreatedAt: createdAt,
		Kind:      api.KindBlobAuth,
		Content:   "",
		Tags: api.Tags{
			{"t", action},
			{"x", hash},
			{"expiration", strconv.FormatInt(expiresAt, 10)},
		},
	}
}

// ToManifestEntry decodes a manifest event's tags into a ManifestEntry.
// Returns false only if the d or x tag is absent; a missing m tag leaves
// MimeType empty, and a missing or unparsable size tag leaves Size zero.
func ToManifestEntry(ev api.Event) (api.ManifestEntry, bool) {
	path, ok := ev.Tags.Find("d")
	if !ok {
		return api.ManifestEntry{}, false
	}
	hash, ok := ev.Tags.Find("x")
	if !ok {
		return api.ManifestEntry{}, false
	}
	mime, _ := ev.Tags.Find("m")
	sizeStr, _ := ev.Tags.Find("size")
	size, _ := strconv.ParseInt(sizeStr, 10, 64)
	return api.ManifestEntry{
		Path:      path,
		Hash:      hash,
		MimeType:  mime,
		Size:      size,
		EventID:   ev.ID,
		CreatedAt: ev.CreatedAt,
	}, true
}

// VerifyID reports whether ev.ID matches the recomputed canonical id.
// Signature verification against that id lives in pkg/signer.
func VerifyID(ev api.Event) bool {
	return ev.ID == ID(ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content)
}
