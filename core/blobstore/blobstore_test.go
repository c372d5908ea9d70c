package blobstore_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velum/chaind/core/blobstore"
)

func setupStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutChunkRoundTrip(t *testing.T) {
	s := setupStore(t)

	data := []byte("hello chunk")
	hash, err := s.PutChunk(data)
	require.NoError(t, err)

	digest := sha256.Sum256(data)
	assert.Equal(t, digest[:], hash)
	assert.True(t, s.ChunkExists(hash))

	got, err := s.ReadChunk(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Cached read returns the same bytes.
	got, err = s.ReadChunk(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutChunkIdempotent(t *testing.T) {
	s := setupStore(t)

	data := []byte("same bytes twice")
	h1, err := s.PutChunk(data)
	require.NoError(t, err)
	h2, err := s.PutChunk(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestReadChunkMissing(t *testing.T) {
	s := setupStore(t)

	digest := sha256.Sum256([]byte("never stored"))
	_, err := s.ReadChunk(digest[:])
	assert.ErrorIs(t, err, blobstore.ErrChunkMissing)
}

func TestPutBlobSmallHasNoChunks(t *testing.T) {
	s := setupStore(t)

	blob, err := s.PutBlob([]byte("tiny"), 1024)
	require.NoError(t, err)

	assert.True(t, blob.Exists())
	assert.Empty(t, blob.Chunks())
	assert.True(t, blob.IsDataLocal())
}

func TestPutBlobChunked(t *testing.T) {
	s := setupStore(t)

	payload := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes
	blob, err := s.PutBlob(payload, 256)
	require.NoError(t, err)

	require.Len(t, blob.Chunks(), 4)
	for _, c := range blob.Chunks() {
		assert.True(t, c.Exists())
		assert.True(t, blob.ContainsChunk(c.Hash()))
	}

	got, err := blob.Read()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManifestAttachAndMembership(t *testing.T) {
	s := setupStore(t)

	c1 := []byte("first chunk")
	c2 := []byte("second chunk")
	d1 := sha256.Sum256(c1)
	d2 := sha256.Sum256(c2)
	blobDigest := sha256.Sum256(append(append([]byte{}, c1...), c2...))

	blob := s.FromHash(blobDigest[:])
	require.NoError(t, blob.AddChunkHashes(append(d1[:], d2[:]...)))

	assert.True(t, blob.ContainsChunk(d1[:]))
	assert.True(t, blob.ContainsChunk(d2[:]))

	stray := sha256.Sum256([]byte("stray"))
	assert.False(t, blob.ContainsChunk(stray[:]))

	// Nothing on disk yet.
	assert.False(t, blob.Exists())
	assert.False(t, blob.IsDataLocal())
	assert.False(t, blob.AllChunksExist())
}

func TestBadManifestRejected(t *testing.T) {
	s := setupStore(t)

	digest := sha256.Sum256([]byte("b"))
	blob := s.FromHash(digest[:])
	err := blob.AddChunkHashes([]byte("short"))
	assert.ErrorIs(t, err, blobstore.ErrBadManifest)
}

func TestJoinReassemblesBlob(t *testing.T) {
	s := setupStore(t)

	c1 := []byte("first chunk")
	c2 := []byte("second chunk")
	payload := append(append([]byte{}, c1...), c2...)
	d1 := sha256.Sum256(c1)
	d2 := sha256.Sum256(c2)
	blobDigest := sha256.Sum256(payload)

	_, err := s.PutChunk(c1)
	require.NoError(t, err)
	_, err = s.PutChunk(c2)
	require.NoError(t, err)

	blob := s.FromHash(blobDigest[:])
	require.NoError(t, blob.AddChunkHashes(append(d1[:], d2[:]...)))
	require.True(t, blob.AllChunksExist())
	assert.True(t, blob.IsDataLocal())

	got, err := blob.Join()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.True(t, blob.Exists())
}

func TestJoinFailsOnMissingChunk(t *testing.T) {
	s := setupStore(t)

	c1 := []byte("only chunk held")
	d1 := sha256.Sum256(c1)
	d2 := sha256.Sum256([]byte("missing chunk"))
	blobDigest := sha256.Sum256([]byte("whatever"))

	_, err := s.PutChunk(c1)
	require.NoError(t, err)

	blob := s.FromHash(blobDigest[:])
	require.NoError(t, blob.AddChunkHashes(append(d1[:], d2[:]...)))

	_, err = blob.Join()
	assert.Error(t, err)
	assert.False(t, blob.Exists())
}

func TestJoinDetectsHashMismatch(t *testing.T) {
	s := setupStore(t)

	c1 := []byte("chunk data")
	d1 := sha256.Sum256(c1)
	wrongBlobDigest := sha256.Sum256([]byte("not the concatenation"))

	_, err := s.PutChunk(c1)
	require.NoError(t, err)

	blob := s.FromHash(wrongBlobDigest[:])
	require.NoError(t, blob.AddChunkHashes(d1[:]))

	_, err = blob.Join()
	assert.ErrorIs(t, err, blobstore.ErrHashMismatch)
}
