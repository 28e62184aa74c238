// Package remotesigner implements the NIP-46-like request/response state
// machine of carried over a pkg/relay pool.
//
// One *relay.Pool-backed session is built per remote signer; request/
// response correlation keeps a single in-flight slot guarded by a mutex,
// since only one signing request is ever outstanding per session.
package remotesigner

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// sharedSecret derives a symmetric key from our ephemeral private key and
// the peer's x-only public key via ECDH, matching the "shared-secret
// derivation between the client ephemeral key and the remote signer
// public key" transport the handshake relies on for encryption.
func sharedSecret(priv *secp256k1.PrivateKey, peerXOnlyHex string) ([32]byte, error) {
	var out [32]byte
	peerBytes, err := hex.DecodeString(peerXOnlyHex)
	if err != nil || len(peerBytes) != 32 {
		return out, fmt.Errorf("remotesigner: invalid peer pubkey %q", peerXOnlyHex)
	}
	// x-only keys are even-y by BIP-340 convention; prefix 0x02 recovers
	// the full compressed point.
	compressed := append([]byte{0x02}, peerBytes...)
	peerPub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return out, fmt.Errorf("remotesigner: parse peer pubkey: %w", err)
	}
	shared := secp256k1.GenerateSharedSecret(priv, peerPub)
	out = sha256.Sum256(shared)
	return out, nil
}

// encrypt seals plaintext under key with AES-256-GCM, matching the
// authenticated-encryption requirement of the transport (the same
// AES-GCM construction pkg/vault uses for its encrypted-file fallback).
func encrypt(key [32]byte, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(sealed), nil
}

func decrypt(key [32]byte, blobHex string) ([]byte, error) {
	sealed, err := hex.DecodeString(blobHex)
	if err != nil {
		return nil, fmt.Errorf("remotesigner: invalid ciphertext encoding: %w", err)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("remotesigner: ciphertext too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
