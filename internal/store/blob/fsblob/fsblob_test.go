package fsblob

import (
	"context"
	"testing"

	"github.com/cuemby/warren/internal/store/blob"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	hash := blob.Sum([]byte("payload"))
	require.NoError(t, b.Write(ctx, hash, []byte("payload")))

	data, err := b.Read(ctx, hash, blob.ByteRange{})
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	require.NoError(t, b.Delete(ctx, hash))
	_, err = b.Read(ctx, hash, blob.ByteRange{})
	require.Error(t, err)
}

func TestWriteIsIdempotentUnderConcurrentSameHash(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	hash := blob.Sum([]byte("same"))
	require.NoError(t, b.Write(ctx, hash, []byte("same")))
	require.NoError(t, b.Write(ctx, hash, []byte("same")))

	data, err := b.Read(ctx, hash, blob.ByteRange{})
	require.NoError(t, err)
	require.Equal(t, "same", string(data))
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	hash := blob.Sum([]byte("0123456789"))
	require.NoError(t, b.Write(ctx, hash, []byte("0123456789")))

	data, err := b.Read(ctx, hash, blob.ByteRange{Offset: 2, Length: 3})
	require.NoError(t, err)
	require.Equal(t, "234", string(data))
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, blob.Sum([]byte("never written"))))
}
