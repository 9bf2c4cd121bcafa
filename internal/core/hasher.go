package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// SweepHash identifies a sweep by the exact set of child processes it would
// launch. Two runs with equal hashes are resumable from one another.
//
// Includes: working directory, every argv in list order, the extra environment.
// Excludes: failure policy, parallelism, log locations, timestamps.
type SweepHash string

// String returns the hex form of the hash.
func (h SweepHash) String() string { return string(h) }

// Short returns the first 12 hex characters, for log lines.
func (h SweepHash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeSweepHash hashes the invocation list. All fields are length
// prefixed so that adjacent fields cannot run into each other.
func ComputeSweepHash(workDir string, invocations []Invocation) SweepHash {
	h := sha256.New()
	writeField(h, []byte(workDir))
	writeCount(h, len(invocations))
	for _, inv := range invocations {
		writeCount(h, len(inv.Argv))
		for _, a := range inv.Argv {
			writeField(h, []byte(a))
		}
		env := sortedEnvPairs(inv.Env)
		writeCount(h, len(env))
		for _, kv := range env {
			writeField(h, []byte(kv))
		}
	}
	return SweepHash(hex.EncodeToString(h.Sum(nil)))
}

func writeField(h hash.Hash, data []byte) {
	writeCount(h, len(data))
	h.Write(data)
}

func writeCount(h hash.Hash, n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	h.Write(b[:])
}
