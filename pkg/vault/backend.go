// Package vault implements the cross-platform credential store of
// : a native-keychain primary path with an
// authenticated-encryption filesystem fallback, a legacy plaintext
// migration, and (for every native-keychain backend) a sidecar index that recovers
// full enumeration from a backend whose search primitive only ever
// returns one match.
package vault

import "context"

// Backend is the uniform secret-store contract every vault backend
// (native keychain, encrypted file, legacy plaintext) implements. service
// groups related accounts (the vault always passes its one fixed service
// name); account is the user public key a credential is keyed by.
type Backend interface {
	Store(ctx context.Context, service, account, secret string) error
	Get(ctx context.Context, service, account string) (secret string, found bool, err error)
	Delete(ctx context.Context, service, account string) (found bool, err error)
	List(ctx context.Context, service string) ([]string, error)
}

// Kind names which Backend variant is in play, reported by Init for
// callers that want to log or display it.
type Kind int

const (
	KindNative Kind = iota
	KindEncryptedFile
	KindLegacyPlaintext
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native-keychain"
	case KindEncryptedFile:
		return "encrypted-file"
	case KindLegacyPlaintext:
		return "legacy-plaintext"
	default:
		return "unknown"
	}
}
