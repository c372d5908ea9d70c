package model

import "github.com/btcsuite/btcutil/base58"

// HashLength is the size of a content hash (SHA-256) and therefore the
// stride of a chunk-hash manifest.
const HashLength = 32

// SignatureLength is the size of a transaction signature.
const SignatureLength = 64

type TxType uint32

const (
	TxGenesis TxType = iota + 1
	TxPayment
	TxArbitrary
)

// TransactionData is a chain-recorded transaction. For arbitrary
// transactions Data holds the content hash of the complete off-chain
// payload and ChunkHashes the concatenated hashes of its chunks, in order.
type TransactionData struct {
	Signature   []byte `json:"signature"`
	Type        TxType `json:"type"`
	Data        []byte `json:"data,omitempty"`
	ChunkHashes []byte `json:"chunkHashes,omitempty"`
}

func (t *TransactionData) IsArbitrary() bool {
	return t != nil && t.Type == TxArbitrary
}

func (t *TransactionData) Signature58() string {
	return base58.Encode(t.Signature)
}

// ChunkHashList splits the concatenated manifest into individual hashes.
// A manifest whose length is not a multiple of HashLength is malformed and
// yields nil.
func (t *TransactionData) ChunkHashList() [][]byte {
	if len(t.ChunkHashes) == 0 || len(t.ChunkHashes)%HashLength != 0 {
		return nil
	}

	hashes := make([][]byte, 0, len(t.ChunkHashes)/HashLength)
	for i := 0; i < len(t.ChunkHashes); i += HashLength {
		hashes = append(hashes, t.ChunkHashes[i:i+HashLength])
	}
	return hashes
}
