package vault

import (
	"os"
	"runtime"
)

// Platform is the detected host backend family. Vault.Init consumes
// this once and never re-detects.
type Platform int

const (
	PlatformNone Platform = iota
	PlatformMacOS
	PlatformWindows
	PlatformLinuxWithSessionBus
)

func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macos"
	case PlatformWindows:
		return "windows"
	case PlatformLinuxWithSessionBus:
		return "linux-session-bus"
	default:
		return "none"
	}
}

// DetectPlatform reports which native-keychain family, if any, this
// process can reach. Linux is only reported when a D-Bus session bus
// looks reachable (secret-service requires one); otherwise the caller
// falls through to the encrypted-file backend.
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		if sessionBusReachable() {
			return PlatformLinuxWithSessionBus
		}
		return PlatformNone
	default:
		return PlatformNone
	}
}

func sessionBusReachable() bool {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
}
