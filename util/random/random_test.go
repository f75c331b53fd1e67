package random

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	n   int
	err error
}

func (r *failingReader) Read(p []byte) (int, error) {
	return copy(p, make([]byte, r.n)), r.err
}

func TestUint64NoncesAreDistinct(t *testing.T) {
	const nonceCount = 1000
	nonces := make(map[uint64]struct{}, nonceCount)
	for i := 0; i < nonceCount; i++ {
		nonce, err := Uint64()
		require.NoError(t, err)
		nonces[nonce] = struct{}{}
	}
	require.Len(t, nonces, nonceCount)
}

func TestUint64ShortRead(t *testing.T) {
	reader := rand.Reader
	defer func() { rand.Reader = reader }()

	rand.Reader = &failingReader{n: 2, err: io.EOF}
	nonce, err := Uint64()
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "unexpected error: %+v", err)
	require.Zero(t, nonce)

	rand.Reader = &failingReader{err: errors.New("entropy source closed")}
	_, err = Uint64()
	require.EqualError(t, err, "entropy source closed")
}
