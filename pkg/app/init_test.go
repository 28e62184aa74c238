package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/config"
)

func setupAppEnv(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("NSYTE_APP_DATA_DIR", dataDir)
	t.Setenv("NSYTE_FORCE_ENCRYPTED_STORAGE", "true")
	return t.TempDir()
}

func TestInitGeneratesLocalKeyAndConfig(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()

	state, err := Init(ctx, projectRoot, InitOptions{
		Relays:      []string{"wss://relay.example"},
		BlobServers: []string{"https://blossom.example"},
	})
	require.NoError(t, err)
	require.Equal(t, config.SignerKindLocalKey, state.SignerKind)
	require.NotEmpty(t, state.PubKey)

	loaded, err := config.Load(projectRoot)
	require.NoError(t, err)
	require.Equal(t, state.PubKey, loaded.PubKey)
}

func TestInitRejectsDoubleInit(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()
	opts := InitOptions{Relays: []string{"wss://relay.example"}, BlobServers: []string{"https://blossom.example"}}

	_, err := Init(ctx, projectRoot, opts)
	require.NoError(t, err)

	_, err = Init(ctx, projectRoot, opts)
	require.Error(t, err)
	require.Equal(t, api.ErrKindConfigInvalid, api.KindOf(err))
}

func TestInitRejectsEmptyRelaysOrServers(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()

	_, err := Init(ctx, projectRoot, InitOptions{BlobServers: []string{"https://blossom.example"}})
	require.Error(t, err)
	require.Equal(t, api.ErrKindConfigInvalid, api.KindOf(err))

	_, err = Init(ctx, projectRoot, InitOptions{Relays: []string{"wss://relay.example"}})
	require.Error(t, err)
	require.Equal(t, api.ErrKindConfigInvalid, api.KindOf(err))
}

func TestInitBunkerURIRequiresLiveHandshake(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()

	_, err := Init(ctx, projectRoot, InitOptions{
		Relays:      []string{"wss://relay.example"},
		BlobServers: []string{"https://blossom.example"},
		BunkerURI:   "bunker://deadbeef?relay=wss://relay.example",
	})
	require.Error(t, err)
	require.Equal(t, api.ErrKindConfigInvalid, api.KindOf(err))
}
