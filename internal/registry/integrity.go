package registry

import (
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Verify checks tarball bytes against an SRI integrity string
// ("sha512-<b64>" or "sha1-<b64>") or a bare hex shasum. An empty or
// unrecognized integrity value verifies trivially; a recognized value that
// does not match fails.
func Verify(data []byte, integrity, shasum string) bool {
	if integrity != "" {
		if algo, want, ok := strings.Cut(integrity, "-"); ok {
			switch algo {
			case "sha512":
				sum := sha512.Sum512(data)
				return base64.StdEncoding.EncodeToString(sum[:]) == want
			case "sha1":
				sum := sha1.Sum(data)
				return base64.StdEncoding.EncodeToString(sum[:]) == want
			}
		}
		// Unknown algorithm: fall through to the shasum, if any.
	}

	if shasum != "" {
		sum := sha1.Sum(data)
		return hex.EncodeToString(sum[:]) == shasum
	}

	return true
}
