package arbitrary

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/velum/chaind/core/blobstore"
	"github.com/velum/chaind/rpc/wire"
)

var (
	ErrFetchInFlight   = errors.New("a fetch for this chunk is already outstanding")
	ErrFileUnavailable = errors.New("peer did not return the file")
	ErrFileCorrupt     = errors.New("received file does not match requested hash")
)

// fetchFile synchronously requests the chunk with the given hash from one
// peer and persists it. No retry, no alternate peer: the caller may try
// another peer on failure.
func (m *Manager) fetchFile(peer Peer, hash []byte) (*blobstore.Chunk, error) {
	hash58 := base58.Encode(hash)
	m.log.Infow("fetch", "status", "fetching data file", "hash", hash58, "peer", peer.String())

	if !m.fileRequests.TryAcquire(hash58, m.clock.Now()) {
		return nil, ErrFetchInFlight
	}
	defer m.fileRequests.Release(hash58)

	response := peer.GetResponse(wire.NewGetArbitraryDataFile(hash))
	if response == nil || response.Type != wire.TypeArbitraryDataFile {
		return nil, ErrFileUnavailable
	}

	digest := sha256.Sum256(response.Data)
	if !bytes.Equal(digest[:], hash) {
		return nil, ErrFileCorrupt
	}

	if _, err := m.blobs.PutChunk(response.Data); err != nil {
		return nil, err
	}

	return m.blobs.Chunk(hash), nil
}
