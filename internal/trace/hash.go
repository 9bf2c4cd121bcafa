package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeTraceHash hashes an already canonical trace encoding (see
// SweepTrace.CanonicalJSON). Empty input yields an empty hash.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}
