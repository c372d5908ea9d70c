package arbitrary

import (
	"math"
	"math/rand"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/velum/chaind/rpc/wire"
)

// findFileList broadcasts a GET_ARBITRARY_DATA_FILE_LIST for signature and
// waits, up to RequestTimeout, for a handler to mark the response received.
//
// Returns false when the table entry vanished (swept before any reply).
// Returns true when a response arrived, and also on deadline expiry: a late
// reply may still arrive and will be handled against the surviving entry.
func (m *Manager) findFileList(signature []byte) bool {
	signature58 := base58.Encode(signature)
	m.log.Infow("discovery", "status", "requesting data file list", "signature", signature58)

	msg := wire.NewGetArbitraryDataFileList(signature)

	rec := RequestRecord{
		Signature58: signature58,
		CreatedAt:   m.clock.Now(),
	}

	// Draw random ids until one is unused. Collisions are rare.
	var id uint32
	for {
		id = randomID()
		if m.fileListRequests.InsertIfAbsent(id, rec) {
			break
		}
	}
	msg.ID = id

	m.network.Broadcast(func(Peer) *wire.Message { return msg })

	// Poll for the handler to null out the entry's signature.
	for waited := time.Duration(0); waited < m.requestTimeout; waited += m.pollInterval {
		select {
		case <-m.stop:
			return false
		case <-time.After(m.pollInterval):
		}

		entry, ok := m.fileListRequests.Get(id)
		if !ok {
			return false
		}
		if !entry.ResponsePending() {
			return true
		}
	}

	// Deadline elapsed; the response may still arrive and be handled
	// asynchronously, so report found. The entry stays for the janitor.
	return true
}

// randomID draws a uniformly random positive 31-bit message id.
func randomID() uint32 {
	return uint32(rand.Int31n(math.MaxInt32-1)) + 1
}
