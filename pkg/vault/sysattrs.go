package vault

import (
	"os"
	"runtime"
)

// systemAttributes gathers the stable-per-machine attributes the
// encrypted-file backend's key derivation mixes into its PBKDF2 password.
// None of these need to be secret: they only need to be
// stable across runs on the same host and different across hosts.
func systemAttributes() string {
	hostname, _ := os.Hostname()
	machineID := readMachineID()
	return hostname + "|" + runtime.GOOS + "|" + runtime.GOARCH + "|" + machineID
}

// readMachineID looks for the handful of well-known stable machine
// identifiers the common OSes expose; returns "" when none are readable,
// which still leaves hostname+GOOS+GOARCH as the key material.
func readMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if raw, err := os.ReadFile(path); err == nil {
			return string(raw)
		}
	}
	return ""
}
