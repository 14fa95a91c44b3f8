package fairlock

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// keyBytes is the entropy minted per acquisition. 20 random bytes make a
// collision between any two clients vanishingly unlikely.
const keyBytes = 20

// Lock is the value returned by a successful acquisition. It is immutable:
// extension does not change Validity, callers that need updated validity
// re-check with IsValid.
type Lock struct {
	// Resource is the logical resource identifier the lock was taken on.
	Resource string

	// Key is the random ownership token minted for this acquisition. Release
	// and extension only act on instances still holding this exact token.
	Key string

	// Validity is the estimated remaining wall-clock time during which the
	// lock is guaranteed held on a quorum, at the moment of acquisition:
	// requested TTL minus acquisition elapsed time minus the drift budget.
	Validity time.Duration
}

// mintKey generates a fresh ownership token
func mintKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
