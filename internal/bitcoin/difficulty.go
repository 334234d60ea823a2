package bitcoin

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/satoshiware/genesis/pkg/errors"
)

// MaxBits is the compact encoding of the difficulty 1 target.
const MaxBits uint32 = 0x1d00ffff

var (
	// maxTarget is BitsToTarget(MaxBits), i.e. 0xffff << 208.
	maxTarget = BitsToTarget(MaxBits)

	// twoPow256 bounds every target that fits a 32 byte hash.
	twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

	// twoPow32 is the expected number of hashes per unit of difficulty.
	twoPow32 = math.Exp2(32)
)

var (
	// ErrNonPositiveTarget is returned for a zero or negative target where a
	// division or a search would be meaningless.
	ErrNonPositiveTarget = errors.New(errors.ErrorTypeValidation, "target", "target must be positive")
	// ErrTargetOverflow is returned for targets that do not fit 256 bits.
	ErrTargetOverflow = errors.New(errors.ErrorTypeValidation, "target", "target exceeds 256 bits")
	// ErrInvalidDifficulty is returned for a zero, negative or non-finite difficulty.
	ErrInvalidDifficulty = errors.New(errors.ErrorTypeValidation, "difficulty", "difficulty must be a positive finite number")
	// ErrInvalidHashrate is returned by the calculator for unusable inputs.
	ErrInvalidHashrate = errors.New(errors.ErrorTypeValidation, "calculate", "hashrate and block time must be positive")
)

// MaxTarget returns a copy of the difficulty 1 target.
func MaxTarget() *big.Int {
	return new(big.Int).Set(maxTarget)
}

// BitsToTarget expands a compact value. All 24 mantissa bits are magnitude;
// exponents below 3 shift right and drop the low bytes.
func BitsToTarget(bits uint32) *big.Int {
	mantissa := big.NewInt(int64(bits & 0x00ffffff))
	exponent := uint(bits >> 24)
	if exponent <= 3 {
		return mantissa.Rsh(mantissa, 8*(3-exponent))
	}
	return mantissa.Lsh(mantissa, 8*(exponent-3))
}

// TargetToBits compresses a target into compact form. Targets above the
// difficulty 1 target are clamped to it, zero maps to zero and negative
// targets are rejected.
func TargetToBits(target *big.Int) (uint32, error) {
	if target == nil || target.Sign() < 0 {
		return 0, ErrNonPositiveTarget
	}
	if target.Sign() == 0 {
		return 0, nil
	}

	t := target
	if t.Cmp(maxTarget) > 0 {
		t = maxTarget
	}

	size := uint((t.BitLen() + 7) / 8)
	var mantissa uint64
	if size <= 3 {
		mantissa = t.Uint64() << (8 * (3 - size))
	} else {
		mantissa = new(big.Int).Rsh(t, 8*(size-3)).Uint64()
	}

	// bit 23 would read back as a sign bit
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	return composeCompact(mantissa, size), nil
}

// composeCompact packs mantissa and size. A mantissa wider than 23 bits or a
// size wider than a byte means the encoder is broken; the value would end up
// in a chain's genesis parameters, so it panics instead of truncating.
func composeCompact(mantissa uint64, size uint) uint32 {
	if mantissa != mantissa&0x007fffff {
		panic(errors.New(errors.ErrorTypeInvariant, "target_to_bits", "mantissa exceeds 23 bits").
			WithContext("mantissa", mantissa))
	}
	if size > 0xff {
		panic(errors.New(errors.ErrorTypeInvariant, "target_to_bits", "size exceeds one byte").
			WithContext("size", size))
	}
	return uint32(mantissa) | uint32(size)<<24
}

// TargetToDifficulty returns maxTarget/target. The quotient is rounded up to
// float64 so that DifficultyToTarget(TargetToDifficulty(t)) never exceeds t.
func TargetToDifficulty(target *big.Int) (float64, error) {
	if target == nil || target.Sign() <= 0 {
		return 0, ErrNonPositiveTarget
	}

	q := new(big.Float).SetPrec(53).SetMode(big.ToPositiveInf)
	q.Quo(new(big.Float).SetInt(maxTarget), new(big.Float).SetInt(target))
	d, _ := q.Float64()
	return d, nil
}

// DifficultyToTarget returns floor(maxTarget/difficulty), computed exactly.
func DifficultyToTarget(difficulty float64) (*big.Int, error) {
	if difficulty <= 0 || math.IsNaN(difficulty) || math.IsInf(difficulty, 0) {
		return nil, ErrInvalidDifficulty.Clone().WithContext("difficulty", difficulty)
	}

	d := new(big.Rat).SetFloat64(difficulty)
	num := new(big.Int).Mul(maxTarget, d.Denom())
	return num.Quo(num, d.Num()), nil
}

// TargetBytes renders target as a 32 byte big-endian array.
func TargetBytes(target *big.Int) ([32]byte, error) {
	var out [32]byte
	if target == nil || target.Sign() <= 0 {
		return out, ErrNonPositiveTarget
	}
	if target.Cmp(twoPow256) >= 0 {
		return out, ErrTargetOverflow
	}
	target.FillBytes(out[:])
	return out, nil
}

// HashMeetsTarget reports whether hash, read in reversed byte order as a
// big-endian integer, is strictly below target.
func HashMeetsTarget(hash chainhash.Hash, target *[32]byte) bool {
	return DigestBelowTarget((*[32]byte)(&hash), target)
}

// DigestBelowTarget compares a natural order digest against a big-endian
// target without allocating: digest[31] is the most significant byte.
func DigestBelowTarget(digest, target *[32]byte) bool {
	for i := range 32 {
		d := digest[31-i]
		if d != target[i] {
			return d < target[i]
		}
	}
	return false
}

// HashToBig returns the reversed-order integer value of a hash.
func HashToBig(hash chainhash.Hash) *big.Int {
	var be [32]byte
	for i := range 32 {
		be[i] = hash[31-i]
	}
	return new(big.Int).SetBytes(be[:])
}

// EstimateHours is the expected search time at hashrate for target,
// (0xffff<<208)/target * 2^32 / hashrate / 3600.
func EstimateHours(target *big.Int, hashrate float64) float64 {
	d, err := TargetToDifficulty(target)
	if err != nil || hashrate <= 0 {
		return math.Inf(1)
	}
	return d * twoPow32 / hashrate / 3600
}

// Calculation is the outcome of the bits calculator.
type Calculation struct {
	TimeBetweenBlocks uint32
	RequestedHashrate float64

	Bits       uint32
	Target     *big.Int
	Difficulty float64
	// Hashrate is the rate the realized (compact, hence lossy) difficulty
	// corresponds to.
	Hashrate float64
}

// Calculate derives compact bits for a network that should find one block
// every timeBetweenBlocks seconds at hashrate H/s, then reads the bits back to
// report what the chain will actually see.
func Calculate(timeBetweenBlocks uint32, hashrate float64) (*Calculation, error) {
	if timeBetweenBlocks == 0 || hashrate <= 0 || math.IsNaN(hashrate) || math.IsInf(hashrate, 0) {
		return nil, ErrInvalidHashrate.Clone().
			WithContext("time", timeBetweenBlocks).
			WithContext("hashrate", hashrate)
	}

	seconds := float64(timeBetweenBlocks)
	difficulty := hashrate / (twoPow32 / seconds)

	target, err := DifficultyToTarget(difficulty)
	if err != nil {
		return nil, err
	}
	bits, err := TargetToBits(target)
	if err != nil {
		return nil, err
	}

	realized := BitsToTarget(bits)
	realizedDifficulty, err := TargetToDifficulty(realized)
	if err != nil {
		return nil, err
	}

	return &Calculation{
		TimeBetweenBlocks: timeBetweenBlocks,
		RequestedHashrate: hashrate,
		Bits:              bits,
		Target:            realized,
		Difficulty:        realizedDifficulty,
		Hashrate:          realizedDifficulty * twoPow32 / seconds,
	}, nil
}
