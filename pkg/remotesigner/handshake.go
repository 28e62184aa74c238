package remotesigner

import (
	"fmt"
	"net/url"
	"strings"
)

// bunkerURL holds the parsed form of bunker://<remote_pubkey>?relay=...&secret=...
type bunkerURL struct {
	RemotePubKey string
	Relays       []string
	Secret       string
}

func parseBunkerURL(raw string) (bunkerURL, error) {
	if !strings.HasPrefix(raw, "bunker://") {
		return bunkerURL{}, fmt.Errorf("remotesigner: not a bunker URL: %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return bunkerURL{}, fmt.Errorf("remotesigner: malformed bunker URL: %w", err)
	}
	remote := u.Host
	if remote == "" {
		return bunkerURL{}, fmt.Errorf("remotesigner: bunker URL missing remote pubkey")
	}
	q := u.Query()
	relays := q["relay"]
	if len(relays) == 0 {
		return bunkerURL{}, fmt.Errorf("remotesigner: bunker URL missing relay parameter")
	}
	return bunkerURL{RemotePubKey: remote, Relays: relays, Secret: q.Get("secret")}, nil
}

// buildNostrConnectURI renders nostrconnect://<ephemeral_pubkey>?relay=...&secret=...&name=...
// for the signer-initiated handshake. Renderable as a QR
// code by callers outside this package.
func buildNostrConnectURI(ephemeralPubKey string, relays []string, secret, appName string) string {
	q := url.Values{}
	for _, r := range relays {
		q.Add("relay", r)
	}
	q.Set("secret", secret)
	if appName != "" {
		q.Set("name", appName)
	}
	return fmt.Sprintf("nostrconnect://%s?%s", ephemeralPubKey, q.Encode())
}
