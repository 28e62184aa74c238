// Package app wires the application context a CLI invocation runs
// against: one vault, one logger, one signer, one relay pool, and one
// blob-backend set per blob server, all constructed once per process.
//
// Everything is constructed once at process start and passed down,
// rather than resolved lazily per call.
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/blobclient"
	"github.com/nsyte-dev/nsyte/pkg/config"
	"github.com/nsyte-dev/nsyte/pkg/credcodec"
	"github.com/nsyte-dev/nsyte/pkg/executor"
	"github.com/nsyte-dev/nsyte/pkg/logging"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/remotesigner"
	"github.com/nsyte-dev/nsyte/pkg/signer"
	"github.com/nsyte-dev/nsyte/pkg/vault"
)

// App is the fully-wired application context one CLI invocation runs
// against.
type App struct {
	Log         *logrus.Entry
	ProjectRoot string
	State       *config.ProjectState
	Vault       *vault.Vault
	Signer      signer.Signer
	RelayPool   *relay.Pool
	Blobs       map[string]blobclient.Backend
	Executor    *executor.Executor
}

// Open loads the project config, initialises the vault, resolves the
// signer (local key or remote session) from the vault's stored
// credential for State.PubKey, and constructs the relay pool, blob
// backends, and executor. Callers that only need config (e.g. the `init`
// command before a config.json exists) should not call Open.
func Open(ctx context.Context, projectRoot string) (*App, error) {
	log := logging.New(os.Getenv("LOG_LEVEL"))

	state, err := config.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	v, kind, err := vault.Init(ctx)
	if err != nil {
		return nil, api.NewError(api.ErrKindVaultBackendFailure, "app.Open", err)
	}
	log.WithField("backend", kind.String()).Debug("vault initialised")

	sgnr, err := resolveSigner(ctx, v, state, log)
	if err != nil {
		return nil, err
	}

	pool := relay.NewPool()

	blobs := make(map[string]blobclient.Backend, len(state.BlobServers))
	for _, server := range state.BlobServers {
		blobs[server] = blobclient.New(server)
	}

	cfg := executor.DefaultConfig()
	if state.PublishFlags.Concurrency > 0 {
		cfg.Concurrency = state.PublishFlags.Concurrency
	}
	if state.PublishFlags.PerServerConcurrency > 0 {
		cfg.PerServerConcurrency = state.PublishFlags.PerServerConcurrency
	}
	if state.PublishFlags.PublishQuorum > 0 {
		cfg.PublishQuorum = state.PublishFlags.PublishQuorum
	}
	if state.PublishFlags.ServerQuorum > 0 {
		cfg.ServerQuorum = state.PublishFlags.ServerQuorum
	}
	cfg.FailFast = state.PublishFlags.FailFast

	exec := executor.New(blobs, pool, state.Relays, sgnr, cfg)

	return &App{
		Log:         log,
		ProjectRoot: projectRoot,
		State:       state,
		Vault:       v,
		Signer:      sgnr,
		RelayPool:   pool,
		Blobs:       blobs,
		Executor:    exec,
	}, nil
}

// resolveSigner loads the credential string the vault stores for
// State.PubKey, decodes it via pkg/credcodec, and constructs the
// matching signer.Signer variant ("decodable by C11 back to
// {type, material}").
func resolveSigner(ctx context.Context, v *vault.Vault, state *config.ProjectState, log *logrus.Entry) (signer.Signer, error) {
	if state.PubKey == "" {
		return nil, fmt.Errorf("project has no signer configured; run init: %w", ErrNoCredential)
	}

	credential, found, err := v.Get(ctx, state.PubKey)
	if err != nil {
		return nil, api.NewError(api.ErrKindVaultBackendFailure, "app.resolveSigner", err)
	}
	if !found {
		return nil, fmt.Errorf("no credential stored for %s: %w", state.PubKey, ErrNoCredential)
	}

	cred, err := credcodec.Decode(credential)
	if err != nil {
		return nil, api.NewError(api.ErrKindMalformed, "app.resolveSigner", err)
	}

	switch cred.Type {
	case credcodec.TypeLocalKey:
		privBytes, err := decodeHex32(cred.LocalKey.PrivateKeyHex)
		if err != nil {
			return nil, api.NewError(api.ErrKindMalformed, "app.resolveSigner", err)
		}
		return signer.NewLocalKey(privBytes)
	case credcodec.TypeRemoteSignerSession:
		pool := relay.NewPool()
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		session, err := remotesigner.ConnectBunker(connectCtx, pool, bunkerURIFromMaterial(cred.RemoteSigner))
		if err != nil {
			return nil, api.NewError(api.ErrKindSignerUnreachable, "app.resolveSigner", err)
		}
		log.Debug("remote signer session reconnected")
		return signer.NewRemoteSigner(session), nil
	default:
		return nil, api.NewError(api.ErrKindMalformed, "app.resolveSigner", fmt.Errorf("unknown credential type"))
	}
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("app: private key must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// bunkerURIFromMaterial reconstructs a "bunker://..." URI from a stored
// remote-signer-session credential (RemoteSignerMaterial),
// the reverse of the URI a user originally pasted at `bunker connect`.
func bunkerURIFromMaterial(m *credcodec.RemoteSignerMaterial) string {
	q := url.Values{}
	for _, r := range m.Relays {
		q.Add("relay", r)
	}
	if m.EphemeralClientSecret != "" {
		q.Set("secret", m.EphemeralClientSecret)
	}
	return fmt.Sprintf("bunker://%s?%s", m.RemoteSignerPubKeyHex, q.Encode())
}

// Close releases the relay pool connections and the signer's own
// resources (a RemoteSigner closes its session's subscription).
func (a *App) Close() error {
	var firstErr error
	if a.Signer != nil {
		if err := a.Signer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.RelayPool.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
