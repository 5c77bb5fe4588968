package changelog

import (
	"encoding/binary"

	"github.com/cuemby/warren/internal/store/storeerr"
)

// TokenKind discriminates the three sync-token shapes of spec.md §4.7.
type TokenKind uint8

const (
	TokenInitial TokenKind = iota
	TokenExact
	TokenIntermediate
)

// Token is a client-held cursor over one (account, syncCollection) change
// log stream. It carries no account identity; callers scope it by URL or
// account, per spec.md §6.
type Token struct {
	Kind TokenKind

	// Exact is valid when Kind == TokenExact: every change up to and
	// including this id has been observed.
	Exact uint64

	// FromID/ToID/ItemsSent are valid when Kind == TokenIntermediate: a
	// paginated traversal of (FromID, latest] that has emitted ItemsSent
	// items so far, the last of which belonged to change ToID.
	FromID    uint64
	ToID      uint64
	ItemsSent uint64
}

// Initial returns the token a client presents before its first sync.
func Initial() Token { return Token{Kind: TokenInitial} }

// ExactToken returns a token asserting every change up to id has been seen.
func ExactToken(id uint64) Token { return Token{Kind: TokenExact, Exact: id} }

// String encodes the token per spec.md §6: a one-byte marker ('n'/'s'/'r')
// followed by base32(LEB128(...)). encoding/binary's Uvarint/PutUvarint
// implement the same unsigned-LEB128 bit layout the wire format calls for
// (7 payload bits per byte, high bit a continuation flag), so no
// third-party varint codec is needed here — it isn't an avoided
// dependency, it's the same algorithm stdlib already has a name for.
func (t Token) String() string {
	switch t.Kind {
	case TokenInitial:
		return "n"
	case TokenExact:
		return "s" + base32EncodeBytes(encodeUvarints(t.Exact))
	case TokenIntermediate:
		return "r" + base32EncodeBytes(encodeUvarints(t.FromID, t.ToID-t.FromID, t.ItemsSent))
	default:
		return "n"
	}
}

// ParseToken decodes a token produced by Token.String.
func ParseToken(s string) (Token, error) {
	if s == "" {
		return Token{}, storeerr.New(storeerr.KindInvalid, "changelog.ParseToken", "empty token")
	}
	marker, body := s[0], s[1:]
	switch marker {
	case 'n':
		return Initial(), nil
	case 's':
		raw, err := base32DecodeBytes(body)
		if err != nil {
			return Token{}, err
		}
		vals, err := decodeUvarints(raw, 1)
		if err != nil {
			return Token{}, err
		}
		return ExactToken(vals[0]), nil
	case 'r':
		raw, err := base32DecodeBytes(body)
		if err != nil {
			return Token{}, err
		}
		vals, err := decodeUvarints(raw, 3)
		if err != nil {
			return Token{}, err
		}
		from, delta, itemsSent := vals[0], vals[1], vals[2]
		return Token{Kind: TokenIntermediate, FromID: from, ToID: from + delta, ItemsSent: itemsSent}, nil
	default:
		return Token{}, storeerr.New(storeerr.KindInvalid, "changelog.ParseToken", "unknown token marker")
	}
}

func encodeUvarints(vals ...uint64) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*len(vals))
	tmp := make([]byte, binary.MaxVarintLen64)
	for _, v := range vals {
		n := binary.PutUvarint(tmp, v)
		buf = append(buf, tmp[:n]...)
	}
	return buf
}

func decodeUvarints(data []byte, count int) ([]uint64, error) {
	vals := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, storeerr.New(storeerr.KindInvalid, "changelog.decodeUvarints", "truncated varint body")
		}
		vals = append(vals, v)
		data = data[n:]
	}
	return vals, nil
}
