//go:build !darwin && !windows && !linux

package vault

import (
	"context"
	"errors"
)

// nativeBackend is never constructible on platforms with no known native
// keychain integration; DetectPlatform reports PlatformNone here and
// vault.go never calls newNativeBackend.
type nativeBackend struct{}

var errNativeUnsupported = errors.New("vault: no native keychain backend on this platform")

func newNativeBackend(Platform) (*nativeBackend, error) {
	return nil, errNativeUnsupported
}

func (b *nativeBackend) Store(ctx context.Context, service, account, secret string) error {
	return errNativeUnsupported
}

func (b *nativeBackend) Get(ctx context.Context, service, account string) (string, bool, error) {
	return "", false, errNativeUnsupported
}

func (b *nativeBackend) Delete(ctx context.Context, service, account string) (bool, error) {
	return false, errNativeUnsupported
}

func (b *nativeBackend) List(ctx context.Context, service string) ([]string, error) {
	return nil, errNativeUnsupported
}
