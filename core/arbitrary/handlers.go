package arbitrary

import (
	"context"
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/velum/chaind/core/repository"
	"github.com/velum/chaind/rpc/wire"
)

// HandleMessage dispatches one inbound, non-response protocol message.
// Safe to call concurrently from many peer read loops.
func (m *Manager) HandleMessage(peer Peer, msg *wire.Message) {
	switch msg.Type {
	case wire.TypeGetArbitraryData:
		m.onGetArbitraryData(peer, msg)
	case wire.TypeGetArbitraryDataFileList:
		m.onGetArbitraryDataFileList(peer, msg)
	case wire.TypeArbitraryDataFileList:
		m.onArbitraryDataFileList(peer, msg)
	case wire.TypeGetArbitraryDataFile:
		m.onGetArbitraryDataFile(peer, msg)
	}
}

// onGetArbitraryData serves a monolithic-blob request: send the payload if
// we hold it, otherwise forward the query to our other peers on the
// requester's behalf.
func (m *Manager) onGetArbitraryData(peer Peer, msg *wire.Message) {
	signature := msg.Signature
	signature58 := base58.Encode(signature)
	now := m.clock.Now()

	// If we've seen this request recently, then ignore
	if !m.fileListRequests.InsertIfAbsent(msg.ID, RequestRecord{Signature58: signature58, Origin: peer, CreatedAt: now}) {
		return
	}

	ctx := context.Background()
	tx, err := m.repo.TransactionBySignature(ctx, signature)
	if err != nil {
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			m.log.Errorw("handler", "error", "failed to load transaction", "peer", peer.String(), "err", err)
		}
		return
	}
	if !tx.IsArbitrary() {
		return
	}

	blob := m.blobs.FromHash(tx.Data)
	if err := blob.AddChunkHashes(tx.ChunkHashes); err != nil {
		m.log.Errorw("handler", "error", "bad chunk manifest", "signature", signature58)
		return
	}

	if blob.IsDataLocal() {
		data, err := blob.Read()
		if err != nil || data == nil {
			return
		}

		// Overwrite the entry to record that we've served it ourselves.
		m.fileListRequests.Insert(msg.ID, RequestRecord{Signature58: signature58, CreatedAt: now})

		reply := wire.NewArbitraryData(signature, data)
		reply.ID = msg.ID
		if !peer.SendMessage(reply) {
			peer.Disconnect("failed to send arbitrary data")
		}
		return
	}

	// Ask our other peers if they have it
	m.network.Broadcast(func(p Peer) *wire.Message {
		if p == peer {
			return nil
		}
		return msg
	})
}

// onGetArbitraryDataFileList answers "which chunks of this transaction do
// you hold?" with the hashes of every locally present chunk. Pure read-side
// responder: it never touches the request table.
func (m *Manager) onGetArbitraryDataFileList(peer Peer, msg *wire.Message) {
	signature := msg.Signature
	m.Stats.GetArbitraryDataFileListMessageStats.Requests.Inc()

	m.log.Infow("handler", "status", "received hash list request", "peer", peer.String(), "signature", base58.Encode(signature))

	hashes := make([][]byte, 0)

	ctx := context.Background()
	tx, err := m.repo.TransactionBySignature(ctx, signature)
	if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
		m.log.Errorw("handler", "error", "failed to load transaction", "peer", peer.String(), "err", err)
		return
	}

	if tx.IsArbitrary() && len(tx.ChunkHashes) > 0 {
		blob := m.blobs.FromHash(tx.Data)
		if err := blob.AddChunkHashes(tx.ChunkHashes); err == nil {
			for _, chunk := range blob.Chunks() {
				if chunk.Exists() {
					hashes = append(hashes, chunk.Hash())
				} else {
					m.log.Debugw("handler", "status", "chunk not held locally", "hash", chunk.Hash58())
				}
			}
		}
	}

	reply := wire.NewArbitraryDataFileList(signature, hashes)
	reply.ID = msg.ID
	if !peer.SendMessage(reply) {
		peer.Disconnect("failed to send list of hashes")
	}
}

// onArbitraryDataFileList handles a peer's answer to our discovery
// broadcast: validate it against the pending request and the transaction's
// chunk manifest, then fetch every listed chunk we don't hold yet.
func (m *Manager) onArbitraryDataFileList(peer Peer, msg *wire.Message) {
	m.log.Infow("handler", "status", "received hash list", "peer", peer.String())

	// Do we have a pending request for this data?
	request, ok := m.fileListRequests.Get(msg.ID)
	if !ok || !request.ResponsePending() {
		return
	}

	// Does this message's signature match what we're expecting?
	signature := msg.Signature
	signature58 := base58.Encode(signature)
	if request.Signature58 != signature58 {
		return
	}

	if len(msg.Hashes) == 0 {
		return
	}

	ctx := context.Background()
	tx, err := m.repo.TransactionBySignature(ctx, signature)
	if err != nil {
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			m.log.Errorw("handler", "error", "failed to load transaction", "peer", peer.String(), "err", err)
		}
		return
	}
	if !tx.IsArbitrary() {
		return
	}

	blob := m.blobs.FromHash(tx.Data)
	if err := blob.AddChunkHashes(tx.ChunkHashes); err != nil {
		m.log.Errorw("handler", "error", "bad chunk manifest", "signature", signature58)
		return
	}

	// Every offered hash must be part of the manifest.
	for _, hash := range msg.Hashes {
		if !blob.ContainsChunk(hash) {
			m.log.Infow("handler", "status", "received non-matching chunk hash", "hash", base58.Encode(hash), "signature", signature58)
			return
		}
	}

	// Record that the response has been received before fetching.
	m.fileListRequests.Insert(msg.ID, RequestRecord{CreatedAt: request.CreatedAt})

	for _, hash := range msg.Hashes {
		if blob.ChunkExists(hash) {
			continue
		}
		if m.fileRequests.Contains(base58.Encode(hash)) {
			m.log.Infow("handler", "status", "already requesting data file", "hash", base58.Encode(hash))
			continue
		}

		if _, err := m.fetchFile(peer, hash); err != nil {
			m.log.Infow("handler", "status", "chunk fetch failed", "hash", base58.Encode(hash), "peer", peer.String(), "err", err)
		}
	}

	// Reassemble the payload once every chunk is present.
	if len(blob.Chunks()) > 0 && blob.AllChunksExist() && !blob.Exists() {
		if _, err := blob.Join(); err != nil {
			m.log.Errorw("handler", "error", "failed to join chunks", "signature", signature58, "err", err)
		} else {
			m.log.Infow("handler", "status", "payload complete", "signature", signature58)
		}
	}

	// Relay to the original requester when we were forwarding on its behalf.
	if request.Origin != nil {
		if !request.Origin.SendMessage(msg) {
			request.Origin.Disconnect("failed to forward arbitrary data file list")
		}
	}
}

// onGetArbitraryDataFile streams one chunk back to the requesting peer, or
// a short "file unknown" sentinel so the peer need not wait out its timeout.
func (m *Manager) onGetArbitraryDataFile(peer Peer, msg *wire.Message) {
	hash := msg.Hash
	m.Stats.GetArbitraryDataFileMessageStats.Requests.Inc()

	if m.blobs.ChunkExists(hash) {
		data, err := m.blobs.ReadChunk(hash)
		if err != nil {
			m.log.Errorw("handler", "error", "failed to read chunk", "hash", base58.Encode(hash), "err", err)
			return
		}

		reply := wire.NewArbitraryDataFile(hash, data)
		reply.ID = msg.ID
		if !peer.SendMessage(reply) {
			peer.Disconnect("failed to send file")
		}
		return
	}

	m.Stats.GetArbitraryDataFileMessageStats.UnknownFiles.Inc()

	m.log.Debugw("handler", "status", "sending file-unknown response", "peer", peer.String(), "hash", base58.Encode(hash))

	// An empty block-summaries frame stands in for a dedicated
	// "file unknown" type to stay wire-compatible with older peers.
	reply := wire.NewEmptyBlockSummaries()
	reply.ID = msg.ID
	if !peer.SendMessage(reply) {
		peer.Disconnect("failed to send file-unknown response")
	}
}
