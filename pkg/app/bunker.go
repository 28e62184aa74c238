package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/config"
	"github.com/nsyte-dev/nsyte/pkg/credcodec"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/remotesigner"
	"github.com/nsyte-dev/nsyte/pkg/vault"
)

// BunkerList reports every public key the vault holds a credential for
// (the `bunker list` subcommand).
func BunkerList(ctx context.Context) ([]string, error) {
	v, _, err := vault.Init(ctx)
	if err != nil {
		return nil, api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerList", err)
	}
	return v.List(ctx)
}

// BunkerConnect runs the client-initiated remote-signer handshake against
// an already-pasted bunker:// URI, stores the resulting session
// credential in the vault, and returns the user's public key (`bunker
// connect`).
func BunkerConnect(ctx context.Context, bunkerURI string) (pubkey string, err error) {
	remotePubHex, relays, secret, err := parseBunkerURIForStorage(bunkerURI)
	if err != nil {
		return "", api.NewError(api.ErrKindConfigInvalid, "app.BunkerConnect", err)
	}

	pool := relay.NewPool()
	defer pool.CloseAll()

	session, err := remotesigner.ConnectBunker(ctx, pool, bunkerURI)
	if err != nil {
		return "", api.NewError(api.ErrKindSignerUnreachable, "app.BunkerConnect", err)
	}
	defer session.Close()

	v, _, err := vault.Init(ctx)
	if err != nil {
		return "", api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerConnect", err)
	}

	credential, err := credcodec.EncodeRemoteSignerSession(remotePubHex, relays, secret)
	if err != nil {
		return "", err
	}
	if err := v.Store(ctx, session.RemotePublicKey(), credential); err != nil {
		return "", api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerConnect", err)
	}
	return session.RemotePublicKey(), nil
}

// parseBunkerURIForStorage extracts the remote signer's own pubkey, its
// relay set, and the reconnect secret from a "bunker://..." URI, the same
// shape pkg/remotesigner parses internally — duplicated here in the
// narrow form app needs for credential persistence rather than importing
// an unexported parser.
func parseBunkerURIForStorage(raw string) (remotePubHex string, relays []string, secret string, err error) {
	if !strings.HasPrefix(raw, "bunker://") {
		return "", nil, "", fmt.Errorf("not a bunker URL: %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, "", fmt.Errorf("malformed bunker URL: %w", err)
	}
	if u.Host == "" {
		return "", nil, "", fmt.Errorf("bunker URL missing remote pubkey")
	}
	q := u.Query()
	if len(q["relay"]) == 0 {
		return "", nil, "", fmt.Errorf("bunker URL missing relay parameter")
	}
	return u.Host, q["relay"], q.Get("secret"), nil
}

// BunkerImport decodes a credential string produced by pkg/credcodec and
// stores it in the vault under the given public key (`bunker import`).
func BunkerImport(ctx context.Context, pubkey, credentialString string) error {
	if _, err := credcodec.Decode(credentialString); err != nil {
		return err
	}
	v, _, err := vault.Init(ctx)
	if err != nil {
		return api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerImport", err)
	}
	if err := v.Store(ctx, pubkey, credentialString); err != nil {
		return api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerImport", err)
	}
	return nil
}

// BunkerExport returns the raw credential string stored for pubkey
// (`bunker export`).
func BunkerExport(ctx context.Context, pubkey string) (string, error) {
	v, _, err := vault.Init(ctx)
	if err != nil {
		return "", api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerExport", err)
	}
	credential, found, err := v.Get(ctx, pubkey)
	if err != nil {
		return "", api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerExport", err)
	}
	if !found {
		return "", fmt.Errorf("no credential for %s: %w", pubkey, ErrNoCredential)
	}
	return credential, nil
}

// BunkerRemove deletes the stored credential for pubkey (`bunker
// remove`), reporting whether one existed.
func BunkerRemove(ctx context.Context, pubkey string) (bool, error) {
	v, _, err := vault.Init(ctx)
	if err != nil {
		return false, api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerRemove", err)
	}
	return v.Delete(ctx, pubkey)
}

// BunkerUse repoints the project's config at a different already-stored
// credential's public key (`bunker use`), without touching the vault.
func BunkerUse(ctx context.Context, projectRoot, pubkey string) error {
	v, _, err := vault.Init(ctx)
	if err != nil {
		return api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerUse", err)
	}
	credential, found, err := v.Get(ctx, pubkey)
	if err != nil {
		return api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerUse", err)
	}
	if !found {
		return fmt.Errorf("no credential for %s: %w", pubkey, ErrNoCredential)
	}

	state, err := config.Load(projectRoot)
	if err != nil {
		return err
	}
	cred, err := credcodec.Decode(credential)
	if err != nil {
		return err
	}
	if cred.Type == credcodec.TypeRemoteSignerSession {
		state.SignerKind = config.SignerKindRemoteSession
	} else {
		state.SignerKind = config.SignerKindLocalKey
	}
	state.PubKey = pubkey
	return config.Save(projectRoot, state)
}

// BunkerMigrate runs vault.Init, which performs the legacy-plaintext-to-
// primary-backend migration unless the migration marker is already
// present (then it does nothing); exposed as the explicit, scriptable
// `bunker migrate` step.
func BunkerMigrate(ctx context.Context) error {
	_, _, err := vault.Init(ctx)
	if err != nil {
		return api.NewError(api.ErrKindVaultBackendFailure, "app.BunkerMigrate", err)
	}
	return nil
}
