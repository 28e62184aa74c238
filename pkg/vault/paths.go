package vault

import (
	"os"
	"path/filepath"
	"runtime"

	homedir "github.com/mitchellh/go-homedir"
)

const serviceName = "nsyte"

// AppDataDir resolves the OS application-data directory the vault's
// encrypted-file backend and migration marker live under the app data directory.
// NSYTE_APP_DATA_DIR overrides it, primarily for tests.
func AppDataDir() (string, error) {
	if dir := os.Getenv("NSYTE_APP_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", serviceName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, serviceName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", serviceName), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, serviceName), nil
		}
		return filepath.Join(home, ".local", "share", serviceName), nil
	}
}

// EncryptedFilePath is the single file the encrypted-file backend seals
// every credential into the same file.
func EncryptedFilePath() (string, error) {
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.enc.json"), nil
}

// LegacyFilePath is the plaintext JSON map migrated away from at Init.
func LegacyFilePath() (string, error) {
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// MigrationMarkerPath is an empty file whose presence inhibits re-running
// legacy migration ("Persisted state").
func MigrationMarkerPath() (string, error) {
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".legacy-migrated"), nil
}

// SidecarIndexPath is the plaintext account-listing index that
// compensates for native keychains' lack of an enumeration primitive.
func SidecarIndexPath() (string, error) {
	dir, err := AppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sidecar-index.json"), nil
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o700)
}
