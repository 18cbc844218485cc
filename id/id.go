// Package id implements the 160-bit opaque identifier used throughout the
// Kademlia overlay: node identities, resource and keyword keys, and
// conversation correlation tokens all share this one type.
//
// ID deliberately carries no embedded nospam/checksum scheme, because
// nothing in this protocol needs a human-shareable invite string. What's
// kept is the XOR-metric machinery the routing table and iterative
// lookups depend on.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// Size is the identifier length in bytes (160 bits).
const Size = 20

// ID is a 160-bit identifier with value semantics.
type ID [Size]byte

// Zero is the all-zero identifier, used as a sentinel.
var Zero ID

// New generates a cryptographically random ID.
func New() (ID, error) {
	var out ID
	if _, err := rand.Read(out[:]); err != nil {
		return Zero, err
	}
	return out, nil
}

// Derive computes a stable ID from an arbitrary byte string. The exact
// hash function is not protocol-critical (any two peers deriving an ID
// for the same bytes must agree), so any stable, fixed-length digest
// works; blake2b-256 truncated to Size bytes is used here.
func Derive(data []byte) ID {
	sum := blake2b.Sum256(data)
	var out ID
	copy(out[:], sum[:Size])
	return out
}

// FromHex parses the hex string representation of an ID.
func FromHex(s string) (ID, error) {
	if len(s) != Size*2 {
		return Zero, errors.New("id: wrong hex length")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return Zero, err
	}
	var out ID
	copy(out[:], data)
	return out, nil
}

// String returns the hex representation of the ID.
func (i ID) String() string {
	return hex.EncodeToString(i[:])
}

// Bytes returns the raw bytes of the ID.
func (i ID) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, i[:])
	return out
}

// MarshalJSON encodes the ID as its hex string, keeping the wire format
// self-describing instead of a raw JSON byte array.
func (i ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

// UnmarshalJSON decodes an ID from its hex string representation.
func (i *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Equal reports whether two IDs are identical.
func (i ID) Equal(other ID) bool {
	return i == other
}

// IsZero reports whether the ID is the all-zero sentinel.
func (i ID) IsZero() bool {
	return i == Zero
}

// XOR computes the XOR distance between two IDs, which is itself a valid
// ID value per Kademlia's metric (XOR(a,b) == XOR(b,a), XOR(a,a) == 0).
func (i ID) XOR(other ID) ID {
	var out ID
	for n := 0; n < Size; n++ {
		out[n] = i[n] ^ other[n]
	}
	return out
}

// Less reports whether i is lexicographically smaller than other when
// interpreted as an unsigned big-endian integer.
func (i ID) Less(other ID) bool {
	for n := 0; n < Size; n++ {
		if i[n] != other[n] {
			return i[n] < other[n]
		}
	}
	return false
}

// CommonPrefixLen returns the number of leading bits shared between i and
// other (0..160). The routing table uses it to pick an XOR-distance bucket.
func (i ID) CommonPrefixLen(other ID) int {
	for byteIdx := 0; byteIdx < Size; byteIdx++ {
		x := i[byteIdx] ^ other[byteIdx]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(0x80>>uint(bit)) != 0 {
				return byteIdx*8 + bit
			}
		}
	}
	return Size * 8
}

// RandomWithPrefix generates a random ID that shares exactly prefixLen
// leading bits with base — used to pick a random member of a given
// k-bucket's range when refreshing a stale bucket.
func RandomWithPrefix(base ID, prefixLen int) (ID, error) {
	out, err := New()
	if err != nil {
		return Zero, err
	}

	for bit := 0; bit < prefixLen; bit++ {
		byteIdx, mask := bit/8, byte(0x80>>uint(bit%8))
		if base[byteIdx]&mask != 0 {
			out[byteIdx] |= mask
		} else {
			out[byteIdx] &^= mask
		}
	}

	if prefixLen < Size*8 {
		flipByte, flipMask := prefixLen/8, byte(0x80>>uint(prefixLen%8))
		// Force the first differing bit so the result lands in exactly
		// the requested bucket rather than a closer one.
		if base[flipByte]&flipMask != 0 {
			out[flipByte] &^= flipMask
		} else {
			out[flipByte] |= flipMask
		}
	}

	return out, nil
}
