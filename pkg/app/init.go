package app

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/config"
	"github.com/nsyte-dev/nsyte/pkg/credcodec"
	"github.com/nsyte-dev/nsyte/pkg/logging"
	"github.com/nsyte-dev/nsyte/pkg/signer"
	"github.com/nsyte-dev/nsyte/pkg/vault"
)

// InitOptions controls one `init` invocation.
type InitOptions struct {
	Relays      []string
	BlobServers []string
	// BunkerURI, when set, initialises the project against an existing
	// remote-signer session instead of generating a fresh local key.
	BunkerURI string
}

// Init creates a new project: generates (or imports) a signer credential,
// stores it in the vault, and writes config.json. It does not call Open,
// since Open requires a config.json to already exist.
func Init(ctx context.Context, projectRoot string, opts InitOptions) (*config.ProjectState, error) {
	log := logging.New("info")

	if exists, err := config.Exists(projectRoot); err != nil {
		return nil, err
	} else if exists {
		return nil, api.NewError(api.ErrKindConfigInvalid, "app.Init", fmt.Errorf("project already initialised at %s", projectRoot))
	}
	if len(opts.Relays) == 0 || len(opts.BlobServers) == 0 {
		return nil, api.NewError(api.ErrKindConfigInvalid, "app.Init", fmt.Errorf("init requires at least one relay and one blob server"))
	}

	v, kind, err := vault.Init(ctx)
	if err != nil {
		return nil, api.NewError(api.ErrKindVaultBackendFailure, "app.Init", err)
	}
	log.WithField("backend", kind.String()).Debug("vault initialised")

	var pubkey, credential string
	var signerKind config.SignerKind

	if opts.BunkerURI != "" {
		pubkey, credential, err = credentialForBunkerURI(opts.BunkerURI)
		if err != nil {
			return nil, err
		}
		signerKind = config.SignerKindRemoteSession
	} else {
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return nil, fmt.Errorf("app: generate signing key: %w", err)
		}
		localSigner, err := signer.NewLocalKey(priv)
		if err != nil {
			return nil, err
		}
		pubkey = localSigner.PublicKey()
		credential, err = credcodec.EncodeLocalKey(priv)
		if err != nil {
			return nil, err
		}
		signerKind = config.SignerKindLocalKey
	}

	if err := v.Store(ctx, pubkey, credential); err != nil {
		return nil, api.NewError(api.ErrKindVaultBackendFailure, "app.Init", err)
	}

	state := &config.ProjectState{
		SignerKind:  signerKind,
		PubKey:      pubkey,
		Relays:      opts.Relays,
		BlobServers: opts.BlobServers,
	}
	if err := config.Save(projectRoot, state); err != nil {
		return nil, err
	}
	return state, nil
}

// credentialForBunkerURI always returns a ConfigInvalid error directing
// the caller to run `bunker connect` after init: a bunker credential
// needs a live handshake with the remote signer, and Init makes no relay
// round trip, so no vault key or credential is derived from the URI here.
func credentialForBunkerURI(bunkerURI string) (pubkey, credential string, err error) {
	return "", "", api.NewError(api.ErrKindConfigInvalid, "app.Init", fmt.Errorf("init --bunker requires an interactive handshake; use `bunker connect` after init"))
}
