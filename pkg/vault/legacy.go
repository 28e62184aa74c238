package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// legacyPlaintextBackend reads (and, during migration, deletes) the
// pre-vault flat JSON credential map on disk. It is read-mostly: Init
// migrates every entry out of it into the chosen primary backend and
// never writes new entries here afterward, but Store is still
// implemented so the backend satisfies Backend uniformly.
type legacyPlaintextBackend struct {
	path string
	mu   sync.Mutex
}

func newLegacyPlaintextBackend(path string) *legacyPlaintextBackend {
	return &legacyPlaintextBackend{path: path}
}

func (b *legacyPlaintextBackend) Store(ctx context.Context, service, account, secret string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.load()
	if err != nil {
		return err
	}
	m[account] = secret
	return b.save(m)
}

func (b *legacyPlaintextBackend) Get(ctx context.Context, service, account string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.load()
	if err != nil {
		return "", false, err
	}
	secret, ok := m[account]
	return secret, ok, nil
}

func (b *legacyPlaintextBackend) Delete(ctx context.Context, service, account string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.load()
	if err != nil {
		return false, err
	}
	if _, ok := m[account]; !ok {
		return false, nil
	}
	delete(m, account)
	if err := b.save(m); err != nil {
		return false, err
	}
	return true, nil
}

func (b *legacyPlaintextBackend) List(ctx context.Context, service string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.load()
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(m))
	for account := range m {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// exists reports whether the legacy file is present at all, distinct from
// being present-but-empty; Init uses this to decide whether migration
// needs to run.
func (b *legacyPlaintextBackend) exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

func (b *legacyPlaintextBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read legacy file: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("vault: parse legacy file: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func (b *legacyPlaintextBackend) save(m map[string]string) error {
	if err := ensureDir(b.path); err != nil {
		return fmt.Errorf("vault: create app data dir: %w", err)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal legacy file: %w", err)
	}
	return os.WriteFile(b.path, raw, 0o600)
}
