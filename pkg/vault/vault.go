package vault

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Vault is the single entry point the rest of nsyte stores and retrieves
// signer credentials through. It owns exactly one primary Backend chosen
// at Init (native keychain, or the encrypted-file fallback), transparent
// one-time migration out of a legacy plaintext store, and — only for the
// native backend, whose List() cannot enumerate — a sidecar index kept in
// lockstep with every Store/Delete.
//
// All vault operations serialize through one process-wide mutex
// ("single writer"): credential files are small and ops are
// infrequent, so correctness is worth more here than any write
// concurrency.
type Vault struct {
	mu      sync.Mutex
	backend Backend
	kind    Kind
	sidecar *sidecarIndex // non-nil only when kind == KindNative
	legacy  *legacyPlaintextBackend
	marker  string
}

const serviceVaultEntries = serviceName

// Init selects the vault's primary backend in priority order (native
// keychain, unless NSYTE_DISABLE_KEYCHAIN forces the encrypted-file
// fallback or no native backend is reachable), migrates any legacy
// plaintext store into it exactly once, and returns the ready Vault along
// with which Kind was selected.
func Init(ctx context.Context) (*Vault, Kind, error) {
	legacyPath, err := LegacyFilePath()
	if err != nil {
		return nil, 0, fmt.Errorf("vault: resolve legacy path: %w", err)
	}
	markerPath, err := MigrationMarkerPath()
	if err != nil {
		return nil, 0, fmt.Errorf("vault: resolve migration marker path: %w", err)
	}

	backend, kind, sidecar, err := selectBackend()
	if err != nil {
		return nil, 0, err
	}

	v := &Vault{
		backend: backend,
		kind:    kind,
		sidecar: sidecar,
		legacy:  newLegacyPlaintextBackend(legacyPath),
		marker:  markerPath,
	}

	if err := v.migrateLegacy(ctx); err != nil {
		return nil, 0, err
	}

	return v, kind, nil
}

func selectBackend() (Backend, Kind, *sidecarIndex, error) {
	if !isEnvTrue("NSYTE_DISABLE_KEYCHAIN") && !isEnvTrue("NSYTE_FORCE_ENCRYPTED_STORAGE") {
		if platform := DetectPlatform(); platform != PlatformNone {
			if native, err := newNativeBackend(platform); err == nil {
				sidecarPath, err := SidecarIndexPath()
				if err != nil {
					return nil, 0, nil, fmt.Errorf("vault: resolve sidecar index path: %w", err)
				}
				return native, KindNative, newSidecarIndex(sidecarPath), nil
			}
		}
	}

	encPath, err := EncryptedFilePath()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("vault: resolve encrypted file path: %w", err)
	}
	return newEncryptedFileBackend(encPath, systemAttributes()), KindEncryptedFile, nil, nil
}

// migrateLegacy copies every entry out of the legacy plaintext file into
// the selected primary backend, removes the legacy file, then writes the
// completion marker so this never runs again ("Persisted state" / S6
// migration scenario). If any entry fails to migrate, the legacy file is
// kept and no marker is written. A marker already present, or no legacy
// file at all, makes this a no-op.
func (v *Vault) migrateLegacy(ctx context.Context) error {
	if _, err := os.Stat(v.marker); err == nil {
		return nil
	}
	if !v.legacy.exists() {
		return v.writeMarker()
	}

	accounts, err := v.legacy.List(ctx, serviceVaultEntries)
	if err != nil {
		return fmt.Errorf("vault: list legacy entries: %w", err)
	}
	for _, account := range accounts {
		secret, found, err := v.legacy.Get(ctx, serviceVaultEntries, account)
		if err != nil {
			return fmt.Errorf("vault: read legacy entry %q: %w", account, err)
		}
		if !found {
			continue
		}
		if err := v.storeInPrimary(ctx, account, secret); err != nil {
			return fmt.Errorf("vault: migrate legacy entry %q: %w", account, err)
		}
	}
	if err := os.Remove(v.legacy.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: remove legacy file: %w", err)
	}
	return v.writeMarker()
}

func (v *Vault) writeMarker() error {
	if err := ensureDir(v.marker); err != nil {
		return fmt.Errorf("vault: create app data dir: %w", err)
	}
	return os.WriteFile(v.marker, []byte{}, 0o600)
}

// Store saves the credential for account, replacing any existing entry.
func (v *Vault) Store(ctx context.Context, account, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.storeInPrimary(ctx, account, secret)
}

func (v *Vault) storeInPrimary(ctx context.Context, account, secret string) error {
	if err := v.backend.Store(ctx, serviceVaultEntries, account, secret); err != nil {
		return err
	}
	if v.sidecar != nil {
		if err := v.sidecar.Add(serviceVaultEntries, account); err != nil {
			return fmt.Errorf("vault: update sidecar index: %w", err)
		}
	}
	return nil
}

// Get retrieves the credential for account, reporting found=false rather
// than an error when no such credential exists.
func (v *Vault) Get(ctx context.Context, account string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backend.Get(ctx, serviceVaultEntries, account)
}

// Delete removes the credential for account, reporting found=false
// rather than an error when no such credential existed.
func (v *Vault) Delete(ctx context.Context, account string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	found, err := v.backend.Delete(ctx, serviceVaultEntries, account)
	if err != nil {
		return false, err
	}
	if found && v.sidecar != nil {
		if err := v.sidecar.Remove(serviceVaultEntries, account); err != nil {
			return false, fmt.Errorf("vault: update sidecar index: %w", err)
		}
	}
	return found, nil
}

// List reports every account with a stored credential. For the
// encrypted-file backend this is the backend's own authoritative list;
// for the native backend, whose own List() cannot enumerate, this is the
// sidecar index instead.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sidecar != nil {
		return v.sidecar.Accounts(serviceVaultEntries)
	}
	return v.backend.List(ctx, serviceVaultEntries)
}

// Kind reports which backend variant this Vault selected at Init.
func (v *Vault) Kind() Kind {
	return v.kind
}

// isEnvTrue matches the "NSYTE_DISABLE_KEYCHAIN=true" /
// "NSYTE_FORCE_ENCRYPTED_STORAGE=true" contract literally rather than
// treating any non-empty value as truthy.
func isEnvTrue(name string) bool {
	return os.Getenv(name) == "true"
}
