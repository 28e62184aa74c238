//go:build darwin

package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker-credential-helpers/credentials"
	"github.com/docker/docker-credential-helpers/osxkeychain"
)

// nativeBackend wraps the OS-native credential store via
// docker-credential-helpers. The underlying credentials.Helper interface
// has no "list accounts under a service" primitive and, on macOS, its
// List() only ever resolves one arbitrary match for a given
// ServerURL/label — so every account under the fixed nsyte service name
// is addressed through a composite "<service>:<account>" ServerURL, and
// full enumeration is reconstructed by the Vault's sidecar index rather
// than by asking this backend to list anything itself.
//
// Built on github.com/docker/docker-credential-helpers, repurposed here
// to store nsyte's own signer credentials instead of registry passwords.
type nativeBackend struct {
	helper credentials.Helper
	mu     sync.Mutex
}

func newNativeBackend(Platform) (*nativeBackend, error) {
	return &nativeBackend{helper: osxkeychain.Osxkeychain{}}, nil
}

func (b *nativeBackend) Store(ctx context.Context, service, account, secret string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &credentials.Credentials{
		ServerURL: compositeTarget(service, account),
		Username:  account,
		Secret:    secret,
	}
	if err := b.helper.Add(c); err != nil {
		return fmt.Errorf("vault: native store: %w", err)
	}
	return nil
}

func (b *nativeBackend) Get(ctx context.Context, service, account string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, secret, err := b.helper.Get(compositeTarget(service, account))
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vault: native get: %w", err)
	}
	return secret, true, nil
}

func (b *nativeBackend) Delete(ctx context.Context, service, account string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, _, err := b.helper.Get(compositeTarget(service, account)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("vault: native delete lookup: %w", err)
	}
	if err := b.helper.Delete(compositeTarget(service, account)); err != nil {
		return false, fmt.Errorf("vault: native delete: %w", err)
	}
	return true, nil
}

// List always reports empty here: this backend's List() primitive cannot
// enumerate, by design of the underlying store (see type doc). The Vault
// orchestration layer is responsible for consulting its sidecar index
// instead of calling this method to discover accounts.
func (b *nativeBackend) List(ctx context.Context, service string) ([]string, error) {
	return nil, nil
}

func compositeTarget(service, account string) string {
	return service + ":" + account
}

func isNotFound(err error) bool {
	return credentials.IsErrCredentialsNotFound(err)
}
