package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainState prefixes state fingerprints.
const DomainState = "fluxr/state/v1"

// Fingerprint returns the hex SHA-256 of the canonical form of v, with
// domain separation: SHA256(domain + 0x00 + canonical(v)).
func Fingerprint(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainState, data), nil
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
