package vault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupVaultEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NSYTE_APP_DATA_DIR", dir)
	t.Setenv("NSYTE_FORCE_ENCRYPTED_STORAGE", "true")
	return dir
}

func TestVaultStoreGetDeleteRoundTrip(t *testing.T) {
	setupVaultEnv(t)
	ctx := context.Background()

	v, kind, err := Init(ctx)
	require.NoError(t, err)
	require.Equal(t, KindEncryptedFile, kind)

	require.NoError(t, v.Store(ctx, "pubkey-a", "secret-a"))

	secret, found, err := v.Get(ctx, "pubkey-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "secret-a", secret)

	_, found, err = v.Get(ctx, "pubkey-missing")
	require.NoError(t, err)
	require.False(t, found)

	deleted, err := v.Delete(ctx, "pubkey-a")
	require.NoError(t, err)
	require.True(t, deleted)

	_, found, err = v.Get(ctx, "pubkey-a")
	require.NoError(t, err)
	require.False(t, found)

	deletedAgain, err := v.Delete(ctx, "pubkey-a")
	require.NoError(t, err)
	require.False(t, deletedAgain)
}

func TestVaultList(t *testing.T) {
	setupVaultEnv(t)
	ctx := context.Background()

	v, _, err := Init(ctx)
	require.NoError(t, err)

	require.NoError(t, v.Store(ctx, "pubkey-a", "secret-a"))
	require.NoError(t, v.Store(ctx, "pubkey-b", "secret-b"))

	accounts, err := v.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pubkey-a", "pubkey-b"}, accounts)
}

func TestVaultEncryptedFileNeverContainsPlaintextSecret(t *testing.T) {
	dir := setupVaultEnv(t)
	ctx := context.Background()

	v, _, err := Init(ctx)
	require.NoError(t, err)
	require.NoError(t, v.Store(ctx, "pubkey-a", "super-secret-value"))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc.json"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-value")
}

func TestVaultMigratesLegacyPlaintextOnce(t *testing.T) {
	dir := setupVaultEnv(t)
	ctx := context.Background()

	legacy := map[string]string{"pubkey-legacy": "legacy-secret"}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"), raw, 0o600))

	v, _, err := Init(ctx)
	require.NoError(t, err)

	secret, found, err := v.Get(ctx, "pubkey-legacy")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "legacy-secret", secret)

	_, err = os.Stat(filepath.Join(dir, ".legacy-migrated"))
	require.NoError(t, err)

	// Re-running Init must not error and must not re-migrate in a way
	// that disturbs an already-migrated, now independently-managed entry.
	require.NoError(t, v.Store(ctx, "pubkey-legacy", "rotated-secret"))
	v2, _, err := Init(ctx)
	require.NoError(t, err)
	secret, found, err = v2.Get(ctx, "pubkey-legacy")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "rotated-secret", secret)
}

func TestVaultInitWithoutLegacyFileIsNoop(t *testing.T) {
	dir := setupVaultEnv(t)
	ctx := context.Background()

	_, _, err := Init(ctx)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ".legacy-migrated"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "credentials.json"))
	require.True(t, os.IsNotExist(err))
}

func TestSidecarIndexAddRemoveAccounts(t *testing.T) {
	dir := t.TempDir()
	idx := newSidecarIndex(filepath.Join(dir, "sidecar-index.json"))

	require.NoError(t, idx.Add("nsyte", "pubkey-a"))
	require.NoError(t, idx.Add("nsyte", "pubkey-b"))
	require.NoError(t, idx.Add("nsyte", "pubkey-a")) // idempotent

	accounts, err := idx.Accounts("nsyte")
	require.NoError(t, err)
	require.Equal(t, []string{"pubkey-a", "pubkey-b"}, accounts)

	require.NoError(t, idx.Remove("nsyte", "pubkey-a"))
	accounts, err = idx.Accounts("nsyte")
	require.NoError(t, err)
	require.Equal(t, []string{"pubkey-b"}, accounts)
}
