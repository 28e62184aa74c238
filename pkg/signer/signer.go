// Package signer implements the uniform signing capability:
// a LocalKey variant backed by a secp256k1 scalar, and a RemoteSigner
// variant that delegates to pkg/remotesigner over a relay pool.
//
// Schnorr signing uses github.com/decred/dcrd/dcrec/secp256k1/v4, the
// same engine underneath github.com/nbd-wtf/go-nostr.
package signer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/event"
)

// Signer produces signatures over event drafts, backed by either a local
// private key or a remote signer reached over a relay pool.
type Signer interface {
	PublicKey() string
	SignEvent(ctx context.Context, draft api.EventDraft) (api.Event, error)
	Close() error
}

// LocalKey signs with a 32-byte private scalar held in process memory.
type LocalKey struct {
	priv   *secp256k1.PrivateKey
	pubHex string
}

// NewLocalKey constructs a LocalKey signer from a 32-byte private scalar.
func NewLocalKey(privBytes [32]byte) (*LocalKey, error) {
	priv := secp256k1.PrivKeyFromBytes(privBytes[:])
	pub := priv.PubKey()
	// Nostr uses x-only (BIP-340) 32-byte public keys.
	xOnly := pub.SerializeCompressed()[1:]
	return &LocalKey{priv: priv, pubHex: hex.EncodeToString(xOnly)}, nil
}

func (l *LocalKey) PublicKey() string { return l.pubHex }

func (l *LocalKey) SignEvent(ctx context.Context, draft api.EventDraft) (api.Event, error) {
	if err := ctx.Err(); err != nil {
		return api.Event{}, api.NewError(api.ErrKindCancelled, "signer.SignEvent", err)
	}
	id := event.ID(l.pubHex, draft.CreatedAt, draft.Kind, draft.Tags, draft.Content)
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return api.Event{}, api.NewError(api.ErrKindMalformed, "signer.SignEvent", err)
	}
	sig, err := schnorr.Sign(l.priv, idBytes, schnorr.CustomNonceSource(schnorrNonceSource{}))
	if err != nil {
		return api.Event{}, api.NewError(api.ErrKindMalformed, "signer.SignEvent", err)
	}
	return api.Event{
		ID:        id,
		PubKey:    l.pubHex,
		CreatedAt: draft.CreatedAt,
		Kind:      draft.Kind,
		Tags:      draft.Tags,
		Content:   draft.Content,
		Sig:       hex.EncodeToString(sig.Serialize()),
	}, nil
}

func (l *LocalKey) Close() error { return nil }

// schnorrNonceSource supplies crypto/rand as the auxiliary randomness for
// BIP-340 Schnorr signing, as the underlying library requires an explicit
// source rather than defaulting silently.
type schnorrNonceSource struct{}

func (schnorrNonceSource) Read(p []byte) (int, error) { return rand.Read(p) }

// VerifySignature checks ev.Sig against ev.PubKey over ev.ID, and that
// ev.ID matches the recomputed canonical id.
func VerifySignature(ev api.Event) (bool, error) {
	if !event.VerifyID(ev) {
		return false, nil
	}
	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false, fmt.Errorf("invalid pubkey encoding")
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false, err
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, err
	}
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return false, fmt.Errorf("invalid id encoding")
	}
	return sig.Verify(idBytes, pub), nil
}
