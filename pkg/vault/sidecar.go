package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// sidecarIndex tracks which accounts have a credential stored in the
// native keychain backend, recovering full List() enumeration the
// underlying keychain API itself cannot provide: native backends only
// return a single match for a given search, so the vault cannot
// enumerate all stored credentials without a separate index. It never
// stores secret material, only account identifiers, so it is safe to
// keep as plaintext JSON next to the encrypted-file backend's own
// store.
type sidecarIndex struct {
	path string
	mu   sync.Mutex
}

func newSidecarIndex(path string) *sidecarIndex {
	return &sidecarIndex{path: path}
}

func (s *sidecarIndex) Add(service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	accounts := m[service]
	for _, existing := range accounts {
		if existing == account {
			return nil
		}
	}
	m[service] = append(accounts, account)
	return s.save(m)
}

func (s *sidecarIndex) Remove(service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	accounts := m[service]
	filtered := accounts[:0]
	for _, existing := range accounts {
		if existing != account {
			filtered = append(filtered, existing)
		}
	}
	m[service] = filtered
	return s.save(m)
}

func (s *sidecarIndex) Accounts(service string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := append([]string(nil), m[service]...)
	sort.Strings(out)
	return out, nil
}

func (s *sidecarIndex) load() (map[string][]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read sidecar index: %w", err)
	}
	var m map[string][]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("vault: parse sidecar index: %w", err)
	}
	if m == nil {
		m = map[string][]string{}
	}
	return m, nil
}

func (s *sidecarIndex) save(m map[string][]string) error {
	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("vault: create app data dir: %w", err)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal sidecar index: %w", err)
	}
	return os.WriteFile(s.path, raw, 0o600)
}
