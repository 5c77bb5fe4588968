package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 10, 1000, Singleton, ^uint64(0) / 2, ^uint64(0) - 1, ^uint64(0)}
	for _, n := range cases {
		id := ID(n)
		s := id.String()
		got, ok := Parse(s)
		assert.True(t, ok)
		assert.Equal(t, id, got, "round trip failed for %d via %q", n, s)
	}
}

func TestFromParts(t *testing.T) {
	id := FromParts(3, 333333333)
	assert.Equal(t, uint32(3), id.PrefixID())
	assert.Equal(t, uint32(333333333), id.DocumentID())
}

func TestSingleton(t *testing.T) {
	assert.True(t, ID(Singleton).IsSingleton())
	assert.False(t, ID(1).IsSingleton())
}

func TestInvalidSentinel(t *testing.T) {
	assert.False(t, ID(^uint64(0)).IsValid())
	assert.True(t, ID(0).IsValid())
}
