//go:build windows

package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker-credential-helpers/credentials"
	"github.com/docker/docker-credential-helpers/wincred"
)

// nativeBackend wraps Windows Credential Manager via
// docker-credential-helpers. names the "<service>:<pubkey>"
// composite target explicitly for Windows; darwin and the Linux
// secret-service backend apply the same composite-key convention for
// consistency (see native_darwin.go).
type nativeBackend struct {
	helper credentials.Helper
	mu     sync.Mutex
}

func newNativeBackend(Platform) (*nativeBackend, error) {
	return &nativeBackend{helper: wincred.Wincred{}}, nil
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

func (b *nativeBackend) List(ctx context.Context, service string) ([]string, error) {
	return nil, nil
}

func compositeTarget(service, account string) string {
	return service + ":" + account
}

func isNotFound(err error) bool {
	return credentials.IsErrCredentialsNotFound(err)
}
