package hashtools

import (
	"crypto/sha256"
	"errors"
	"hash"
	"io"
	"math/big"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/cpu"
)

const HashLength = 28

type HashType byte

const (
	None HashType = iota

	SHA2_224    // can be faster if SHA2-256 crypto instructions are available
	BLAKE2b_224 // fastest on most 64bit CPUs without dedicated crypto instructions
	BLAKE3_224  // fastest on 32bit arm stuff (without SHA2 instructions) or AVX2 supporting stuff
	HighwayHash // keyed with zero key, not for adversarial inputs, truncated to 224 bits

	hashTypeMax = iota - 1
)

var hashNames = [hashTypeMax + 1]string{
	None:        "none",
	SHA2_224:    "sha2-224",
	BLAKE2b_224: "blake2b-224",
	BLAKE3_224:  "blake3-224",
	HighwayHash: "highwayhash",
}

func (t HashType) String() string {
	if t <= hashTypeMax {
		return hashNames[t]
	}
	return "unknown"
}

var errUnknownHash = errors.New("hashtools: unknown hash type")

// ParseHashType accepts names as printed by String and "default".
func ParseHashType(s string) (HashType, error) {
	s = strings.ToLower(s)
	if s == "default" {
		return defaultHashType, nil
	}
	if s == "" {
		return None, nil
	}
	for i, n := range hashNames {
		if n == s {
			return HashType(i), nil
		}
	}
	return None, errUnknownHash
}

var hhkey [32]byte

var hasherFactories = [hashTypeMax]func() hash.Hash{
	sha256.New224,
	func() hash.Hash { x, _ := blake2b.New(HashLength, nil); return x },
	func() hash.Hash { return blake3.New() },
	func() hash.Hash { x, _ := highwayhash.New(hhkey[:]); return x },
}

var defaultHashType HashType

func autoPickDefaultHash() HashType {
	// currently only ARM64 because pretty much guaranteed gain
	if cpu.ARM64.HasSHA2 {
		return SHA2_224
	}
	return BLAKE2b_224
}

func init() { defaultHashType = autoPickDefaultHash() }

func DefaultHashType() HashType { return defaultHashType }

// Hasher accumulates streamed data and names it.
type Hasher struct {
	t      HashType
	h      hash.Hash
	x      big.Int
	strBuf [45]byte // 1 type byte + upto 32 hash bytes before truncation; base36 of 29 bytes fits in 44
}

func NewHasher(t HashType) (*Hasher, error) {
	if t == None || t > hashTypeMax {
		return nil, errUnknownHash
	}
	return &Hasher{t: t, h: hasherFactories[t-1]()}, nil
}

func (h *Hasher) Type() HashType { return h.t }

func (h *Hasher) Write(b []byte) (int, error) {
	return h.h.Write(b)
}

func (h *Hasher) Reset() {
	h.h.Reset()
}

// Sum returns truncated raw hash.
func (h *Hasher) Sum() (s [HashLength]byte) {
	b := h.h.Sum(h.strBuf[1:1])
	copy(s[:], b)
	return
}

// String returns textual representation usable in filename:
// base36 of type byte followed by hash, reversed so that front characters vary most.
func (h *Hasher) String() string {
	h.strBuf[0] = byte(h.t)
	h.h.Sum(h.strBuf[1:1])

	h.x.SetBytes(h.strBuf[:1+HashLength])
	xb := h.x.Append(h.strBuf[:0], 36)

	for i, j := 0, len(xb)-1; i < j; i, j = i+1, j-1 {
		xb[i], xb[j] = xb[j], xb[i]
	}

	return string(xb)
}

// MakeFileHash returns textual representation of hash of everything readable from r.
func MakeFileHash(r io.Reader, t HashType) (string, error) {
	h, err := NewHasher(t)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(h, r); err != nil {
		return "", err
	}
	return h.String(), nil
}
