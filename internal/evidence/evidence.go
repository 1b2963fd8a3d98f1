// Package evidence derives the fixed-width fingerprints used to correlate
// a reported URL across the report ledger and the rewards ledger.
//
// Two schemes exist and the call sites are fixed: Hash on the automated
// (classifier-triggered) submission path, Pad on the user-report path and
// at verification time. Verification recomputes Pad from the domain stored
// on the report, so the user-report and verification sites must never
// diverge.
package evidence

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// ErrTooLong reports a URL that does not fit the padded evidence slot.
var ErrTooLong = errors.New("url exceeds evidence slot")

// Size is the ledger's evidence slot width in bytes.
const Size = 32

// Fingerprint is a fixed-width evidence value.
type Fingerprint [Size]byte

// Hex returns the 0x-prefixed hex form used at the wire boundary.
func (f Fingerprint) Hex() string {
	return "0x" + hex.EncodeToString(f[:])
}

// Hash derives a fingerprint as the keccak-256 digest of the raw URL
// bytes. Pure function of the URL.
func Hash(url string) Fingerprint {
	var f Fingerprint
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(url))
	copy(f[:], h.Sum(nil))
	return f
}

// Pad derives a fingerprint as the raw URL bytes right-padded with zero
// bytes to the slot width. Unlike Hash it is reversible, which is what
// the rewards ledger keys on. URLs longer than the slot cannot use this
// scheme.
func Pad(url string) (Fingerprint, error) {
	var f Fingerprint
	if len(url) > Size {
		return f, fmt.Errorf("url is %d bytes, limit %d: %w", len(url), Size, ErrTooLong)
	}
	copy(f[:], url)
	return f, nil
}
