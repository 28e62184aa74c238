// Package config loads and persists the per-project state record of
// ("Project state") — signer reference, relays, blob servers,
// publish flags — to and from a fixed JSON schema on disk.
//
// A fixed-shape JSON file is read from a resolved directory via
// encoding/json; directory resolution uses
// github.com/mitchellh/go-homedir.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

const configDirName = ".nsyte"
const configFileName = "config.json"

// SignerKind distinguishes how PubKey in ProjectState should be
// interpreted — whether a local private key or a remote-signer session
// backs it.
type SignerKind string

const (
	SignerKindLocalKey      SignerKind = "local-key"
	SignerKindRemoteSession SignerKind = "remote-signer-session"
)

// PublishFlags mirrors executor.Config's tunables that are a project
// property rather than a per-invocation override (table).
type PublishFlags struct {
	Concurrency          int  `json:"concurrency,omitempty"`
	PerServerConcurrency int  `json:"per_server_concurrency,omitempty"`
	PublishQuorum        int  `json:"publish_quorum,omitempty"`
	ServerQuorum         int  `json:"server_quorum,omitempty"`
	FailFast             bool `json:"fail_fast,omitempty"`
}

// ProjectState is the persisted record of "Project state".
type ProjectState struct {
	SignerKind SignerKind `json:"signer_kind"`
	// PubKey is both the author's hex public key and the vault's lookup
	// key for the corresponding credential record, for either SignerKind.
	// The vault itself is keyed by public key (it stores tuples of
	// (public key, bundled credential blob)), so this field can only ever
	// be the literal pubkey, never a separate opaque reference — see
	// DESIGN.md's "reference vs. pubkey" open-question resolution. What
	// config.json never holds, for SignerKindRemoteSession, is any key
	// material: the vault entry it points to contains only the session's
	// bundled credential (remote signer pubkey, relays, ephemeral secret),
	// never a private scalar.
	PubKey string `json:"pub_key,omitempty"`

	Relays       []string     `json:"relays"`
	BlobServers  []string     `json:"blob_servers"`
	Profile      Profile      `json:"profile,omitempty"`
	PublishFlags PublishFlags `json:"publish_flags,omitempty"`

	// AppMetadata is opaque application metadata a caller may round-trip
	// ("optional application metadata").
	AppMetadata map[string]string `json:"app_metadata,omitempty"`
}

// Profile is optional author-facing metadata (display name, about text)
// a manifest-adjacent profile event might later be built from.
type Profile struct {
	Name  string `json:"name,omitempty"`
	About string `json:"about,omitempty"`
}

// Dir resolves the project's config directory: <project>/<config-dir>,
// where config-dir defaults to .nsyte and NSYTE_CONFIG_DIR overrides it
// entirely (an absolute override, not a sibling of the default name).
func Dir(projectRoot string) (string, error) {
	if override := os.Getenv("NSYTE_CONFIG_DIR"); override != "" {
		return override, nil
	}
	abs, err := homedir.Expand(projectRoot)
	if err != nil {
		return "", fmt.Errorf("config: expand project root: %w", err)
	}
	return filepath.Join(abs, configDirName), nil
}

// Path resolves the full path to config.json under the project's config
// directory.
func Path(projectRoot string) (string, error) {
	dir, err := Dir(projectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads and validates the project config. A missing file is
// reported as a plain ErrNotExist-wrapped error — the caller (an `init`
// command implementation) decides whether that means "run init" or is
// fatal; Load itself never creates one.
func Load(projectRoot string) (*ProjectState, error) {
	path, err := Path(projectRoot)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var state ProjectState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, api.NewError(api.ErrKindConfigInvalid, "config.Load", fmt.Errorf("parse %s: %w", path, err))
	}
	if err := Validate(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save writes state to config.json, creating the config directory if
// necessary. Writes are not atomic-rename based; nothing here requires
// durability beyond "mutated by explicit user action", so a plain
// os.WriteFile is enough.
func Save(projectRoot string, state *ProjectState) error {
	if err := Validate(state); err != nil {
		return err
	}
	dir, err := Dir(projectRoot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	path := filepath.Join(dir, configFileName)
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate enforces the schema-level invariants calls
// ConfigInvalid: "fatal at start; no partial execution".
func Validate(state *ProjectState) error {
	if state.SignerKind != SignerKindLocalKey && state.SignerKind != SignerKindRemoteSession {
		return api.NewError(api.ErrKindConfigInvalid, "config.Validate", fmt.Errorf("unknown signer_kind %q", state.SignerKind))
	}
	if len(state.Relays) == 0 {
		return api.NewError(api.ErrKindConfigInvalid, "config.Validate", fmt.Errorf("relays must not be empty"))
	}
	if len(state.BlobServers) == 0 {
		return api.NewError(api.ErrKindConfigInvalid, "config.Validate", fmt.Errorf("blob_servers must not be empty"))
	}
	return nil
}

// Exists reports whether a config.json is already present, distinguishing
// "not initialised yet" from a read/parse failure.
func Exists(projectRoot string) (bool, error) {
	path, err := Path(projectRoot)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", path, err)
	}
	return true, nil
}
