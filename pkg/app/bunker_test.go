package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/config"
	"github.com/nsyte-dev/nsyte/pkg/credcodec"
)

func TestParseBunkerURIForStorage(t *testing.T) {
	remotePubHex, relays, secret, err := parseBunkerURIForStorage(
		"bunker://deadbeef?relay=wss%3A%2F%2Frelay.example&secret=abc123")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", remotePubHex)
	require.Equal(t, []string{"wss://relay.example"}, relays)
	require.Equal(t, "abc123", secret)
}

func TestParseBunkerURIForStorageRejectsNonBunkerURI(t *testing.T) {
	_, _, _, err := parseBunkerURIForStorage("https://example.com")
	require.Error(t, err)
}

func TestParseBunkerURIForStorageRequiresRelay(t *testing.T) {
	_, _, _, err := parseBunkerURIForStorage("bunker://deadbeef")
	require.Error(t, err)
}

func TestBunkerImportExportRemoveListRoundTrip(t *testing.T) {
	setupAppEnv(t)
	ctx := context.Background()

	var priv [32]byte
	for i := range priv {
		priv[i] = byte(i)
	}
	credential, err := credcodec.EncodeLocalKey(priv)
	require.NoError(t, err)

	require.NoError(t, BunkerImport(ctx, "pubkey-a", credential))

	accounts, err := BunkerList(ctx)
	require.NoError(t, err)
	require.Contains(t, accounts, "pubkey-a")

	exported, err := BunkerExport(ctx, "pubkey-a")
	require.NoError(t, err)
	require.Equal(t, credential, exported)

	removed, err := BunkerRemove(ctx, "pubkey-a")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = BunkerExport(ctx, "pubkey-a")
	require.Error(t, err)
}

func TestBunkerUseRepointsConfig(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()

	state, err := Init(ctx, projectRoot, InitOptions{
		Relays:      []string{"wss://relay.example"},
		BlobServers: []string{"https://blossom.example"},
	})
	require.NoError(t, err)

	var priv [32]byte
	for i := range priv {
		priv[i] = byte(i + 1)
	}
	credential, err := credcodec.EncodeLocalKey(priv)
	require.NoError(t, err)
	require.NoError(t, BunkerImport(ctx, "pubkey-other", credential))

	require.NoError(t, BunkerUse(ctx, projectRoot, "pubkey-other"))

	updated, err := config.Load(projectRoot)
	require.NoError(t, err)
	require.Equal(t, "pubkey-other", updated.PubKey)
	require.NotEqual(t, state.PubKey, updated.PubKey)
}
