package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	aesKeyLen        = 32
	// fixedAppSalt is mixed into the PBKDF2 password material alongside the
	// host's stable attributes (); it is not a secret, only a
	// domain separator so this vault's derived keys never collide with an
	// unrelated tool deriving from the same host attributes.
	fixedAppSalt = "nsyte-credential-vault-v1"
)

// encryptedEntry is one sealed secret inside credentials.enc.json.
type encryptedEntry struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"data"`
}

type encryptedFile struct {
	Version     int                       `json:"version"`
	Credentials map[string]encryptedEntry `json:"credentials"`
}

// encryptedFileBackend is the filesystem fallback used whenever no native
// keychain is reachable. Every secret is sealed with
// AES-256-GCM under a key derived via PBKDF2-SHA256 from stable system
// attributes plus a fixed application salt, mixed with a random
// per-credential salt so two credentials never share a derived key even
// though they share the same machine-level password material.
//
// Keys are derived with golang.org/x/crypto/pbkdf2 and never trusted
// without verifying the GCM tag on read.
type encryptedFileBackend struct {
	path        string
	systemAttrs string
	mu          sync.Mutex
}

func newEncryptedFileBackend(path, systemAttrs string) *encryptedFileBackend {
	return &encryptedFileBackend{path: path, systemAttrs: systemAttrs}
}

func (b *encryptedFileBackend) Store(ctx context.Context, service, account, secret string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.load()
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("vault: generate salt: %w", err)
	}
	key := deriveKey(b.systemAttrs, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("vault: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(secret), []byte(service))

	f.Credentials[entryKey(service, account)] = encryptedEntry{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}
	return b.save(f)
}

func (b *encryptedFileBackend) Get(ctx context.Context, service, account string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.load()
	if err != nil {
		return "", false, err
	}
	entry, ok := f.Credentials[entryKey(service, account)]
	if !ok {
		return "", false, nil
	}

	secret, err := b.open(entry, service)
	if err != nil {
		return "", false, err
	}
	return secret, true, nil
}

func (b *encryptedFileBackend) Delete(ctx context.Context, service, account string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.load()
	if err != nil {
		return false, err
	}
	key := entryKey(service, account)
	if _, ok := f.Credentials[key]; !ok {
		return false, nil
	}
	delete(f.Credentials, key)
	if err := b.save(f); err != nil {
		return false, err
	}
	return true, nil
}

func (b *encryptedFileBackend) List(ctx context.Context, service string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.load()
	if err != nil {
		return nil, err
	}
	var accounts []string
	prefix := service + ":"
	for key := range f.Credentials {
		if account, ok := stripPrefix(key, prefix); ok {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (b *encryptedFileBackend) open(entry encryptedEntry, service string) (string, error) {
	salt, err := hex.DecodeString(entry.Salt)
	if err != nil {
		return "", fmt.Errorf("vault: decode salt: %w", err)
	}
	nonce, err := hex.DecodeString(entry.Nonce)
	if err != nil {
		return "", fmt.Errorf("vault: decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(entry.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}

	key := deriveKey(b.systemAttrs, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(service))
	if err != nil {
		return "", fmt.Errorf("vault: decrypt entry: authentication failed: %w", err)
	}
	return string(plaintext), nil
}

func (b *encryptedFileBackend) load() (*encryptedFile, error) {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return &encryptedFile{Version: 1, Credentials: map[string]encryptedEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read encrypted file: %w", err)
	}
	var f encryptedFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("vault: parse encrypted file: %w", err)
	}
	if f.Credentials == nil {
		f.Credentials = map[string]encryptedEntry{}
	}
	return &f, nil
}

func (b *encryptedFileBackend) save(f *encryptedFile) error {
	if err := ensureDir(b.path); err != nil {
		return fmt.Errorf("vault: create app data dir: %w", err)
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal encrypted file: %w", err)
	}
	return os.WriteFile(b.path, raw, 0o600)
}

// deriveKey mixes stable system attributes and a fixed application salt
// into the PBKDF2 password, while using the per-credential random salt as
// the PBKDF2 salt parameter. Every credential therefore gets its own
// derived key without needing its own independent password material.
func deriveKey(systemAttrs string, salt []byte) []byte {
	password := sha256.Sum256([]byte(systemAttrs + fixedAppSalt))
	return pbkdf2.Key(password[:], salt, pbkdf2Iterations, aesKeyLen, sha256.New)
}

func entryKey(service, account string) string {
	return service + ":" + account
}

func stripPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}
