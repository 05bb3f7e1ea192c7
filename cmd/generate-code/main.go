package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	internalotp "oracle-backend/internal/otp"

	"github.com/pquerna/otp/totp"
)

// generate-code computes the current code for a seed in every mode the
// system understands: the trap-aware oracle code, the block-rotation
// contract code, and a plain RFC-6238 TOTP for the legacy prototype flow.
func main() {
	var (
		seed      = flag.String("seed", "", "user seed (required)")
		blockHash = flag.String("block-hash", "0x0000000000000000000000000000000000000000000000000000000000000000", "latest block hash for the trap-aware code")
		triggered = flag.Bool("triggered", false, "trap trigger state")
		block     = flag.Uint64("block", 0, "block number for the rotation code")
	)
	flag.Parse()

	if *seed == "" {
		fmt.Fprintln(os.Stderr, "usage: generate-code -seed <seed> [-block-hash 0x..] [-triggered] [-block N]")
		os.Exit(1)
	}

	now := time.Now()

	trapCode := internalotp.GenerateTrapCodeAt(*seed, *blockHash, *triggered, now)
	fmt.Printf("Trap-aware code:     %s (time step %d, valid ~%ds)\n",
		trapCode, internalotp.TimeStep(now), internalotp.TimeStepSeconds)

	rotationCode := internalotp.ComputeRotationCode(rotationSeed(*seed), *block)
	fmt.Printf("Block-rotation code: %06d (block %d, window key %d, next rotation at block %d)\n",
		rotationCode, *block, internalotp.RotationKey(*block), internalotp.NextRotationBlock(*block))

	if legacyCode, err := totp.GenerateCode(*seed, now); err == nil {
		fmt.Printf("Standard TOTP:       %s (valid ~30s)\n", legacyCode)
	} else {
		fmt.Printf("Standard TOTP:       n/a (seed is not base32: %v)\n", err)
	}
}

// rotationSeed mirrors the processor's seed mapping: decimal when it parses,
// raw bytes otherwise.
func rotationSeed(seed string) *big.Int {
	if n, ok := new(big.Int).SetString(seed, 10); ok {
		return n
	}
	return new(big.Int).SetBytes([]byte(seed))
}
