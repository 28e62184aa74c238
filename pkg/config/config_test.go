package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validState() *ProjectState {
	return &ProjectState{
		SignerKind:  SignerKindLocalKey,
		PubKey:      "abc123",
		Relays:      []string{"wss://relay.example"},
		BlobServers: []string{"https://blossom.example"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	state := validState()
	state.PublishFlags.PublishQuorum = 2
	require.NoError(t, Save(dir, state))

	exists, err := Exists(dir)
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, state.PubKey, loaded.PubKey)
	require.Equal(t, state.Relays, loaded.Relays)
	require.Equal(t, 2, loaded.PublishFlags.PublishQuorum)
}

func TestLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()

	exists, err := Exists(dir)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = Load(dir)
	require.Error(t, err)
}

func TestValidateRejectsEmptyRelaysAndServers(t *testing.T) {
	dir := t.TempDir()

	state := validState()
	state.Relays = nil
	require.Error(t, Save(dir, state))

	state = validState()
	state.BlobServers = nil
	require.Error(t, Save(dir, state))
}

func TestValidateRejectsUnknownSignerKind(t *testing.T) {
	state := validState()
	state.SignerKind = "bogus"
	require.Error(t, Validate(state))
}

func TestNsyteConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NSYTE_CONFIG_DIR", dir)

	state := validState()
	require.NoError(t, Save("/this/path/is/ignored", state))

	loaded, err := Load("/this/path/is/ignored")
	require.NoError(t, err)
	require.Equal(t, state.PubKey, loaded.PubKey)
}
