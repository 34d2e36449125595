// Package sha256hash implements verify.HashVerifier by parsing the
// SHA256 checksum section of a Debian-style Release file and comparing
// digests in hex.
package sha256hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Apt-Gate/Aptgate/internal/domain/verify"
)

// Verifier is stateless; all methods are safe for concurrent use.
type Verifier struct{}

// New creates a Verifier.
func New() *Verifier {
	return &Verifier{}
}

// ParseReleaseChecksums implements verify.HashVerifier. It reads the
// "SHA256:" section of a Release index, whose entries are lines of the
// form "  <hex digest> <size> <filename>" indented under the section
// header, and returns filename -> lower-case hex digest.
func (v *Verifier) ParseReleaseChecksums(releaseText string) map[string]string {
	checksums := make(map[string]string)
	inSection := false

	for _, line := range strings.Split(releaseText, "\n") {
		if strings.HasPrefix(line, "SHA256:") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if line == "" || !strings.HasPrefix(line, " ") {
			// A non-indented, non-blank line ends the checksum section.
			if line != "" {
				inSection = false
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		digest, _, filename := fields[0], fields[1], fields[2]
		checksums[filename] = strings.ToLower(digest)
	}

	return checksums
}

// Verify implements verify.HashVerifier.
func (v *Verifier) Verify(data []byte, expectedHex string) bool {
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	return strings.EqualFold(actual, expectedHex)
}

// VerifyInRelease implements verify.HashVerifier.
func (v *Verifier) VerifyInRelease(data []byte, filename string, checksums map[string]string) bool {
	expected, ok := checksums[filename]
	if !ok {
		return false
	}
	return v.Verify(data, expected)
}

var _ verify.HashVerifier = (*Verifier)(nil)
