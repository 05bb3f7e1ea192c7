package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTrapCode_Deterministic(t *testing.T) {
	const (
		seed      = "JBSWY3DPEHPK3PXP"
		blockHash = "0x7f9c9e31ac8256ca2f258583df262dbc7d6f68f2a03043d5c99a4ae5a7396ce9"
	)

	a := GenerateTrapCode(seed, blockHash, false, 58000000)
	b := GenerateTrapCode(seed, blockHash, false, 58000000)
	assert.Equal(t, a, b, "same inputs must yield the same code")
	assert.Len(t, a, Digits)
	assert.Regexp(t, `^[0-9]{6}$`, a, "code must be 6 digits, zero-padded")
}

func TestGenerateTrapCode_TrapStateChangesCode(t *testing.T) {
	const (
		seed      = "JBSWY3DPEHPK3PXP"
		blockHash = "0x7f9c9e31ac8256ca2f258583df262dbc7d6f68f2a03043d5c99a4ae5a7396ce9"
	)

	safe := GenerateTrapCode(seed, blockHash, false, 58000000)
	triggered := GenerateTrapCode(seed, blockHash, true, 58000000)
	assert.NotEqual(t, safe, triggered, "trap state must be part of the digested material")
}

func TestGenerateTrapCode_TimeStepChangesCode(t *testing.T) {
	const (
		seed      = "JBSWY3DPEHPK3PXP"
		blockHash = "0x0000000000000000000000000000000000000000000000000000000000000000"
	)

	a := GenerateTrapCode(seed, blockHash, false, 58000000)
	b := GenerateTrapCode(seed, blockHash, false, 58000001)
	assert.NotEqual(t, a, b)
}

func TestTimeStep(t *testing.T) {
	assert.Equal(t, uint64(0), TimeStep(time.Unix(29, 0)))
	assert.Equal(t, uint64(1), TimeStep(time.Unix(30, 0)))
	assert.Equal(t, uint64(1), TimeStep(time.Unix(59, 0)))
	assert.Equal(t, uint64(2), TimeStep(time.Unix(60, 0)))
}

func TestValidateTrapCode(t *testing.T) {
	const (
		seed      = "KRSXG5A="
		blockHash = "0xdeadbeef"
	)
	step := TimeStep(time.Now())

	code := GenerateTrapCode(seed, blockHash, true, step)
	assert.True(t, ValidateTrapCode(code, seed, blockHash, true, step))

	assert.False(t, ValidateTrapCode(code, seed, blockHash, false, step),
		"code generated under TRIGGERED must not validate under SAFE")
	assert.False(t, ValidateTrapCode("000000x", seed, blockHash, true, step),
		"length mismatch must reject")
	assert.False(t, ValidateTrapCode("", seed, blockHash, true, step))
}

func TestGenerateTrapCodeAt_MatchesExplicitStep(t *testing.T) {
	now := time.Unix(1756300000, 0)
	const seed = "JBSWY3DPEHPK3PXP"

	require.Equal(t,
		GenerateTrapCode(seed, "0xabc", false, TimeStep(now)),
		GenerateTrapCodeAt(seed, "0xabc", false, now))
}

func TestDigestHex_StableLength(t *testing.T) {
	d := DigestHex("seed", "0x00", false, 1)
	assert.Len(t, d, 64, "HMAC-SHA256 digest renders as 64 hex chars")
}
