package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const fingerprintLen = 16

var fingerprintSalt = []byte("pollboard/fingerprint/v1")

// Fingerprint derives a stable, non-reversible device signature from
// descriptive parts (host name, account, platform). Empty parts are skipped.
// It deduplicates anonymous votes and is not a secret.
func Fingerprint(parts ...string) (string, error) {
	keep := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, p)
		}
	}
	r := hkdf.New(sha256.New, []byte(strings.Join(keep, "\x00")), fingerprintSalt, []byte("vote"))
	out := make([]byte, fingerprintLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}
