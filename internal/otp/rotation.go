package otp

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RotationInterval is the number of blocks a rotation-keyed code stays valid.
// Windows are inclusive on the lower bound: block N shares a window with
// N+1..N+4.
const RotationInterval = 5

var maxCode = big.NewInt(1_000_000)

// RotationKey returns the rotation window index for a block number.
func RotationKey(blockNumber uint64) uint64 {
	return blockNumber / RotationInterval
}

// NextRotationBlock returns the first block of the window after the one
// containing blockNumber.
func NextRotationBlock(blockNumber uint64) uint64 {
	return (blockNumber/RotationInterval + 1) * RotationInterval
}

// IsRotationBlock reports whether blockNumber starts a rotation window.
func IsRotationBlock(blockNumber uint64) bool {
	return blockNumber%RotationInterval == 0
}

// ComputeRotationCode computes the block-rotation variant of the 6-digit
// code: keccak256 over the tightly packed (uint256 rotationKey, uint256 seed)
// pair, reduced mod 10^6. This mirrors the trap contract's on-chain rotation
// logic, so both sides agree on the code for any block in the same window.
func ComputeRotationCode(seed *big.Int, blockNumber uint64) uint32 {
	key := new(big.Int).SetUint64(RotationKey(blockNumber))

	packed := make([]byte, 0, 64)
	packed = append(packed, common.LeftPadBytes(key.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(seed.Bytes(), 32)...)

	hash := crypto.Keccak256(packed)
	code := new(big.Int).Mod(new(big.Int).SetBytes(hash), maxCode)
	return uint32(code.Uint64())
}
