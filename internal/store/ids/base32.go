// Package ids implements the public object-id format of spec.md §6:
// (prefixId<<32)|documentId, encoded with the same Crockford-derived
// base32 alphabet used by the sync-token codec in internal/store/changelog.
//
// Grounded on crates/types/src/id.rs, including the reserved singleton
// constant and the "eat leading zero bits in multiples of five" encoding
// used there (ported from https://github.com/archer884/crockford).
package ids

// Alphabet is Crockford's base32 alphabet with 'u' omitted, matching
// utils::codec::base32_custom::BASE32_ALPHABET.
const Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var inverse [256]uint8

func init() {
	for i := range inverse {
		inverse[i] = 0xFF
	}
	for i := 0; i < len(Alphabet); i++ {
		inverse[Alphabet[i]] = uint8(i)
	}
	// Accept uppercase too, same index.
	for i := 0; i < len(Alphabet); i++ {
		c := Alphabet[i]
		if c >= 'a' && c <= 'z' {
			inverse[c-'a'+'A'] = uint8(i)
		}
	}
}

// Singleton is the reserved Id value identifying the account-level
// virtual object, copied verbatim from Id::singleton() in id.rs.
const Singleton uint64 = 20080258862541

// ID is a public object id: (prefixId<<32)|documentId.
type ID uint64

// FromParts builds an Id from a prefix and a document id.
func FromParts(prefixID, documentID uint32) ID {
	return ID((uint64(prefixID) << 32) | uint64(documentID))
}

// DocumentID returns the low 32 bits.
func (id ID) DocumentID() uint32 { return uint32(id) }

// PrefixID returns the high 32 bits.
func (id ID) PrefixID() uint32 { return uint32(id >> 32) }

// IsSingleton reports whether id is the reserved account-level virtual object.
func (id ID) IsSingleton() bool { return uint64(id) == Singleton }

// IsValid reports whether id is not the invalid sentinel (all-ones, Rust's
// Id::default()).
func (id ID) IsValid() bool { return uint64(id) != ^uint64(0) }

// String encodes id using the Crockford-derived alphabet, reproducing
// Id::as_string: leading zero nibbles are skipped five bits at a time,
// and a trailing 1-bit acts as both the padding marker and the loop's
// stop condition.
func (id ID) String() string {
	n := uint64(id)
	if n == 0 {
		return "0"
	}

	const quadShift = 60
	const quadReset = 4
	const fiveShift = 59
	const fiveReset = 5
	const stopBit uint64 = 1 << quadShift

	buf := make([]byte, 0, 13)

	switch i := n >> quadShift; i {
	case 0:
		n <<= quadReset
		n |= 1
		lz := leadingZeros64(n)
		n <<= (lz / 5) * 5
	default:
		n <<= quadReset
		n |= 1
		buf = append(buf, Alphabet[i])
	}

	for n != stopBit {
		buf = append(buf, Alphabet[n>>fiveShift])
		n <<= fiveReset
	}

	return string(buf)
}

func leadingZeros64(n uint64) int {
	count := 0
	for bit := uint64(1) << 63; bit != 0 && n&bit == 0; bit >>= 1 {
		count++
	}
	return count
}

// Parse decodes the base32 text representation of an ID.
func Parse(s string) (ID, bool) {
	var n uint64
	for i := 0; i < len(s); i++ {
		v := inverse[s[i]]
		if v == 0xFF {
			return 0, false
		}
		n = (n << 5) | uint64(v)
	}
	return ID(n), true
}
