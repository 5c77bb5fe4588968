// Package changelog implements the per-account change log and sync-token
// protocol of component F (spec.md §4.7): monotonic change ids, a compact
// sync-token codec, and the merge/truncation logic that turns a scan of
// Log(account, syncCollection, ...) rows into a created/updated/destroyed/
// vanished report.
package changelog

import (
	"github.com/cuemby/warren/internal/store/ids"
	"github.com/cuemby/warren/internal/store/storeerr"
)

// base32EncodeBytes encodes an arbitrary byte string five bits at a time
// using the same Crockford-derived alphabet as internal/store/ids, so a
// sync token and a public object id look like they came from the same
// codec (spec.md §6). Unlike ids.ID.String, which bit-packs a single u64
// and skips leading zero quintets, this is a plain unpadded base32 over a
// variable-length buffer, since a token body is a concatenation of
// variable-length LEB128 integers rather than one fixed-width integer.
func base32EncodeBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var out []byte
	var acc uint32
	var bits uint
	for _, b := range data {
		acc = (acc << 8) | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, ids.Alphabet[(acc>>bits)&0x1F])
		}
	}
	if bits > 0 {
		out = append(out, ids.Alphabet[(acc<<(5-bits))&0x1F])
	}
	return string(out)
}

func base32DecodeBytes(s string) ([]byte, error) {
	var acc uint32
	var bits uint
	var out []byte
	for i := 0; i < len(s); i++ {
		v := base32Inverse(s[i])
		if v == 0xFF {
			return nil, storeerr.New(storeerr.KindInvalid, "changelog.base32DecodeBytes", "invalid base32 character")
		}
		acc = (acc << 5) | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	return out, nil
}

func base32Inverse(c byte) uint8 {
	for i := 0; i < len(ids.Alphabet); i++ {
		if ids.Alphabet[i] == c {
			return uint8(i)
		}
		if c >= 'A' && c <= 'Z' && ids.Alphabet[i] == c-'A'+'a' {
			return uint8(i)
		}
	}
	return 0xFF
}
