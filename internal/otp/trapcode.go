// Package otp implements the deterministic code engines used by the
// verification oracle. Two variants exist and they are NOT interchangeable:
//
//   - the trap-aware variant (this file): HMAC-SHA256 over seed, latest block
//     hash, trap trigger state and a 30-second wall-clock time step. This is
//     the canonical algorithm the oracle verifies submissions against.
//   - the block-rotation variant (rotation.go): keccak256 keyed by a
//     5-block rotation window, matching the demo trap contract.
//
// Both produce 6-digit codes but from different material; which one a
// deployment uses must agree with the on-chain contract fulfilling requests.
package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Digits is the rendered code length.
const Digits = 6

// TimeStepSeconds is the wall-clock rotation interval of the trap-aware code.
const TimeStepSeconds = 30

// Trap state tags mixed into the digested material. The same seed and time
// window yield different codes depending on trigger state.
const (
	trapStateTriggered = "TRIGGERED"
	trapStateSafe      = "SAFE"
)

var codeModulus = uint32(1_000_000) // 10^Digits

// TimeStep returns the trap-aware rotation step for a point in time.
func TimeStep(t time.Time) uint64 {
	return uint64(t.Unix() / TimeStepSeconds)
}

// GenerateTrapCode computes the 6-digit trap-aware code for the given seed,
// block hash, trap state and time step. Pure: identical inputs always yield
// the identical code.
//
// The digest is HMAC-SHA256(key=seed, msg="seed:blockHash:trapState:timeStep").
// The code is extracted at a variable byte offset taken from the digest's
// trailing nibble, then reduced mod 10^6 and left-zero-padded.
func GenerateTrapCode(seed, blockHash string, trapTriggered bool, timeStep uint64) string {
	state := trapStateSafe
	if trapTriggered {
		state = trapStateTriggered
	}

	mac := hmac.New(sha256.New, []byte(seed))
	fmt.Fprintf(mac, "%s:%s:%s:%d", seed, blockHash, state, timeStep)
	digest := mac.Sum(nil)

	// Trailing hex nibble selects the 4-byte extraction window, so the
	// offset lands in [0, 15] of a 32-byte digest.
	offset := digest[len(digest)-1] & 0x0f
	code := binary.BigEndian.Uint32(digest[offset : offset+4])

	return fmt.Sprintf("%0*d", Digits, code%codeModulus)
}

// GenerateTrapCodeAt is GenerateTrapCode with the time step taken from t.
func GenerateTrapCodeAt(seed, blockHash string, trapTriggered bool, t time.Time) string {
	return GenerateTrapCode(seed, blockHash, trapTriggered, TimeStep(t))
}

// ValidateTrapCode recomputes the expected code and compares it against the
// submitted one in constant time. Length mismatch rejects immediately; equal
// lengths are compared byte-wise without early exit to avoid leaking how many
// leading digits of a guess were right.
func ValidateTrapCode(submitted, seed, blockHash string, trapTriggered bool, timeStep uint64) bool {
	expected := GenerateTrapCode(seed, blockHash, trapTriggered, timeStep)
	if len(submitted) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// DigestHex exposes the raw HMAC digest of the combined material as hex.
// Used by the generate-code tool to show the extraction window.
func DigestHex(seed, blockHash string, trapTriggered bool, timeStep uint64) string {
	state := trapStateSafe
	if trapTriggered {
		state = trapStateTriggered
	}
	mac := hmac.New(sha256.New, []byte(seed))
	fmt.Fprintf(mac, "%s:%s:%s:%d", seed, blockHash, state, timeStep)
	return hex.EncodeToString(mac.Sum(nil))
}
