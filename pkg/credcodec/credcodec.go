// Package credcodec encodes and decodes the bundled signer credential
// blobs of to and from a self-describing, human-transferable
// string: a bech32 envelope whose human-readable prefix names the
// credential type, the way NIP-19 names nsec/ncryptsec strings in the
// wider Nostr ecosystem.
//
// Built on github.com/btcsuite/btcd/btcutil/bech32, the same
// checksum/charset primitive underlying NIP-19 bech32 credential
// strings; renamed here to this domain's own prefixes rather than
// nsec/ncryptsec since nothing here is itself a raw Nostr secret key.
package credcodec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Type distinguishes the two credential shapes a Signer variant needs:
// a tagged enum over a fixed, small set of variants.
type Type int

const (
	TypeLocalKey Type = iota
	TypeRemoteSignerSession
)

const (
	prefixLocalKey = "nsite-local"
	prefixBunker   = "nsite-bunker"
)

// MalformedCredential is returned by Decode on checksum mismatch or an
// unrecognised human-readable prefix.
type MalformedCredential struct {
	Reason string
}

func (e *MalformedCredential) Error() string {
	return fmt.Sprintf("credcodec: malformed credential: %s", e.Reason)
}

// LocalKeyMaterial is the payload of a local-key credential: the raw
// 32-byte private scalar, hex-encoded for JSON transport inside the
// bech32 envelope.
type LocalKeyMaterial struct {
	PrivateKeyHex string `json:"k"`
}

// RemoteSignerMaterial is the payload of a remote-signer-session
// credential ("Session persistence"): the remote signer's
// public key, the shared relay set, and the reconnect secret the session
// was handshaked with. EphemeralClientSecret is carried verbatim (it is
// itself already an opaque hex nonce chosen by the client at handshake
// time, not a fixed-size key) so reconnecting reproduces the exact value
// the remote signer was first shown.
type RemoteSignerMaterial struct {
	RemoteSignerPubKeyHex string   `json:"rp"`
	Relays                []string `json:"r"`
	EphemeralClientSecret string   `json:"e"`
}

// Credential is the decoded form of a credential string: exactly one of
// LocalKey or RemoteSigner is populated, matching Type.
type Credential struct {
	Type         Type
	LocalKey     *LocalKeyMaterial
	RemoteSigner *RemoteSignerMaterial
}

// EncodeLocalKey bundles a 32-byte private scalar into an
// "nsite-local1..." credential string.
func EncodeLocalKey(priv [32]byte) (string, error) {
	return encode(prefixLocalKey, LocalKeyMaterial{PrivateKeyHex: hex.EncodeToString(priv[:])})
}

// EncodeRemoteSignerSession bundles a remote-signer session into an
// "nsite-bunker1..." credential string. ephemeralSecret is carried as-is
// (see RemoteSignerMaterial).
func EncodeRemoteSignerSession(remotePubKeyHex string, relays []string, ephemeralSecret string) (string, error) {
	return encode(prefixBunker, RemoteSignerMaterial{
		RemoteSignerPubKeyHex: remotePubKeyHex,
		Relays:                append([]string(nil), relays...),
		EphemeralClientSecret: ephemeralSecret,
	})
}

func encode(hrp string, material any) (string, error) {
	raw, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("credcodec: marshal credential material: %w", err)
	}
	converted, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("credcodec: convert bits: %w", err)
	}
	return bech32.Encode(hrp, converted)
}

// Decode parses a credential string back into its typed material,
// returning *MalformedCredential on checksum mismatch or an unknown
// prefix (invariant: decode(encode(c)) == c).
func Decode(s string) (Credential, error) {
	hrp, converted, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Credential{}, &MalformedCredential{Reason: err.Error()}
	}
	raw, err := bech32.ConvertBits(converted, 5, 8, false)
	if err != nil {
		return Credential{}, &MalformedCredential{Reason: err.Error()}
	}

	switch hrp {
	case prefixLocalKey:
		var m LocalKeyMaterial
		if err := json.Unmarshal(raw, &m); err != nil {
			return Credential{}, &MalformedCredential{Reason: "local key payload: " + err.Error()}
		}
		return Credential{Type: TypeLocalKey, LocalKey: &m}, nil
	case prefixBunker:
		var m RemoteSignerMaterial
		if err := json.Unmarshal(raw, &m); err != nil {
			return Credential{}, &MalformedCredential{Reason: "remote signer payload: " + err.Error()}
		}
		return Credential{Type: TypeRemoteSignerSession, RemoteSigner: &m}, nil
	default:
		return Credential{}, &MalformedCredential{Reason: fmt.Sprintf("unknown prefix %q", hrp)}
	}
}
