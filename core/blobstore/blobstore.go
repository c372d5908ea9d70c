package blobstore

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	fp "path/filepath"

	"github.com/btcsuite/btcutil/base58"
	"github.com/velum/chaind/core/model"
	"github.com/velum/chaind/lib/cache"
	"github.com/velum/chaind/lib/checksum"
)

var (
	ErrBadManifest     = errors.New("chunk hash manifest length is not a multiple of the hash size")
	ErrChunkMissing    = errors.New("chunk is not stored locally")
	ErrHashMismatch    = errors.New("content does not match its hash")
	ErrBlobNotComplete = errors.New("blob has missing chunks")
)

// Store is a content-addressed blob store. Complete blobs and individual
// chunks share one namespace: everything is stored under the base58 form of
// its SHA-256 hash, fanned out over a two-character prefix directory so no
// single directory grows too large.
type Store struct {
	root  string
	cache *cache.LRU
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("blobstore root: %w", err)
	}

	return &Store{
		root:  root,
		cache: cache.NewLRU(64),
	}, nil
}

func (s *Store) path(hash []byte) string {
	h58 := base58.Encode(hash)
	return fp.Join(s.root, h58[:2], h58)
}

// FromHash returns a handle to the (possibly absent) blob with the given
// content hash. Chunk hashes are attached separately via AddChunkHashes.
func (s *Store) FromHash(hash []byte) *Blob {
	return &Blob{store: s, hash: hash}
}

// Chunk returns a handle to the chunk with the given hash.
func (s *Store) Chunk(hash []byte) *Chunk {
	return &Chunk{store: s, hash: hash}
}

// PutChunk persists data under its own content hash and returns that hash.
// Writing an already-present chunk is a no-op.
func (s *Store) PutChunk(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	hash := digest[:]

	if s.ChunkExists(hash) {
		return hash, nil
	}
	if err := s.write(hash, data); err != nil {
		return nil, err
	}
	return hash, nil
}

func (s *Store) ChunkExists(hash []byte) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// ReadChunk returns the bytes stored under hash, via an LRU cache keyed by
// the hash checksum so hot chunks are not re-read on every peer request.
func (s *Store) ReadChunk(hash []byte) ([]byte, error) {
	key := checksum.CalculateCheckSum(hash)
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChunkMissing
		}
		return nil, err
	}

	s.cache.Put(key, data)
	return data, nil
}

// PutBlob stores a complete payload: the blob itself under its content hash
// plus, when the payload is larger than chunkSize, every chunk under its own
// hash. The returned handle carries the chunk manifest in order.
func (s *Store) PutBlob(data []byte, chunkSize int) (*Blob, error) {
	digest := sha256.Sum256(data)
	hash := digest[:]

	if err := s.write(hash, data); err != nil {
		return nil, err
	}

	blob := &Blob{store: s, hash: hash}
	if chunkSize <= 0 || len(data) <= chunkSize {
		return blob, nil
	}

	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunkHash, err := s.PutChunk(data[off:end])
		if err != nil {
			return nil, err
		}
		blob.chunks = append(blob.chunks, &Chunk{store: s, hash: chunkHash})
	}
	return blob, nil
}

func (s *Store) write(hash, data []byte) error {
	path := s.path(hash)
	if err := os.MkdirAll(fp.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Blob is a handle to one content-addressed payload and its chunk manifest.
type Blob struct {
	store  *Store
	hash   []byte
	chunks []*Chunk
}

func (b *Blob) Hash() []byte {
	return b.hash
}

func (b *Blob) Hash58() string {
	return base58.Encode(b.hash)
}

// AddChunkHashes attaches the transaction's concatenated chunk-hash
// manifest to this handle.
func (b *Blob) AddChunkHashes(chunkHashes []byte) error {
	if len(chunkHashes) == 0 {
		return nil
	}
	if len(chunkHashes)%model.HashLength != 0 {
		return ErrBadManifest
	}

	for i := 0; i < len(chunkHashes); i += model.HashLength {
		hash := chunkHashes[i : i+model.HashLength]
		b.chunks = append(b.chunks, &Chunk{store: b.store, hash: hash})
	}
	return nil
}

// ContainsChunk reports whether hash is part of this blob's manifest.
func (b *Blob) ContainsChunk(hash []byte) bool {
	for _, c := range b.chunks {
		if bytes.Equal(c.hash, hash) {
			return true
		}
	}
	return false
}

// ChunkExists reports whether the chunk with the given hash is on disk.
func (b *Blob) ChunkExists(hash []byte) bool {
	return b.store.ChunkExists(hash)
}

// Exists reports whether the complete blob is on disk.
func (b *Blob) Exists() bool {
	_, err := os.Stat(b.store.path(b.hash))
	return err == nil
}

func (b *Blob) Chunks() []*Chunk {
	return b.chunks
}

func (b *Blob) AllChunksExist() bool {
	for _, c := range b.chunks {
		if !c.Exists() {
			return false
		}
	}
	return true
}

// IsDataLocal reports whether the payload is wholly held locally: either as
// the complete blob, or as the full set of manifest chunks.
func (b *Blob) IsDataLocal() bool {
	if b.Exists() {
		return true
	}
	return len(b.chunks) > 0 && b.AllChunksExist()
}

// Read returns the complete blob's bytes, joining chunks first if only the
// chunks are present.
func (b *Blob) Read() ([]byte, error) {
	if b.Exists() {
		return os.ReadFile(b.store.path(b.hash))
	}
	return b.Join()
}

// Join reassembles the complete blob from its chunks, verifies it against
// the blob hash and persists it. Fails if any chunk is missing.
func (b *Blob) Join() ([]byte, error) {
	if len(b.chunks) == 0 {
		return nil, ErrBlobNotComplete
	}

	var data []byte
	for _, c := range b.chunks {
		chunkData, err := c.Read()
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", c.Hash58(), err)
		}
		data = append(data, chunkData...)
	}

	digest := sha256.Sum256(data)
	if !bytes.Equal(digest[:], b.hash) {
		return nil, ErrHashMismatch
	}

	if err := b.store.write(b.hash, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Chunk is a handle to one piece of a blob.
type Chunk struct {
	store *Store
	hash  []byte
}

func (c *Chunk) Hash() []byte {
	return c.hash
}

func (c *Chunk) Hash58() string {
	return base58.Encode(c.hash)
}

func (c *Chunk) Exists() bool {
	return c.store.ChunkExists(c.hash)
}

func (c *Chunk) Read() ([]byte, error) {
	return c.store.ReadChunk(c.hash)
}
