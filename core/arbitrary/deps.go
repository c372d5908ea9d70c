package arbitrary

import (
	"context"
	"time"

	"github.com/velum/chaind/core/model"
	"github.com/velum/chaind/rpc/wire"
)

// Repository is the slice of blockchain storage the manager needs.
// TransactionBySignature returns repository.ErrTransactionNotFound for
// unknown signatures.
type Repository interface {
	TransactionBySignature(ctx context.Context, signature []byte) (*model.TransactionData, error)
	ArbitraryTransactionSignatures(ctx context.Context) ([][]byte, error)
}

// Peer is one connected, handshaked remote node.
type Peer interface {
	String() string

	// SendMessage writes msg to the peer, reporting success.
	SendMessage(msg *wire.Message) bool

	// GetResponse sends msg stamped with a fresh id and blocks for the reply
	// carrying that id. Returns nil on timeout or send failure.
	GetResponse(msg *wire.Message) *wire.Message

	Disconnect(reason string)
}

// Network is the peer-to-peer transport surface.
type Network interface {
	HandshakedPeers() []Peer

	// Broadcast sends fn(peer) to every connected peer; returning nil from
	// fn skips that peer.
	Broadcast(fn func(p Peer) *wire.Message)
}

// Clock supplies monotonic-ish network time in milliseconds.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// SystemClock is the wall-clock Clock used outside tests.
var SystemClock Clock = systemClock{}
