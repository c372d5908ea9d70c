package arbitrary

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/velum/chaind/core/blobstore"
	"github.com/velum/chaind/core/model"
	"github.com/velum/chaind/core/repository"
	"github.com/velum/chaind/lib/logger"
	"github.com/velum/chaind/rpc/wire"
)

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

type fakeRepo struct {
	mu  sync.Mutex
	txs map[string]*model.TransactionData
	err error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: make(map[string]*model.TransactionData)}
}

func (r *fakeRepo) add(tx *model.TransactionData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[base58.Encode(tx.Signature)] = tx
}

func (r *fakeRepo) TransactionBySignature(_ context.Context, signature []byte) (*model.TransactionData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	tx, ok := r.txs[base58.Encode(signature)]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return tx, nil
}

func (r *fakeRepo) ArbitraryTransactionSignatures(_ context.Context) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	sigs := make([][]byte, 0, len(r.txs))
	for _, tx := range r.txs {
		if tx.Type == model.TxArbitrary {
			sigs = append(sigs, tx.Signature)
		}
	}
	return sigs, nil
}

type fakePeer struct {
	mu          sync.Mutex
	name        string
	sendOK      bool
	sent        []*wire.Message
	requested   []*wire.Message
	disconnects []string

	// respond builds the reply GetResponse returns; nil means no reply.
	respond func(msg *wire.Message) *wire.Message
}

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name, sendOK: true}
}

func (p *fakePeer) String() string {
	return p.name
}

func (p *fakePeer) SendMessage(msg *wire.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return p.sendOK
}

func (p *fakePeer) GetResponse(msg *wire.Message) *wire.Message {
	p.mu.Lock()
	p.requested = append(p.requested, msg)
	respond := p.respond
	p.mu.Unlock()

	if respond == nil {
		return nil
	}
	return respond(msg)
}

func (p *fakePeer) Disconnect(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects = append(p.disconnects, reason)
}

func (p *fakePeer) sentMessages() []*wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*wire.Message(nil), p.sent...)
}

func (p *fakePeer) requestedMessages() []*wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*wire.Message(nil), p.requested...)
}

func (p *fakePeer) disconnectReasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.disconnects...)
}

type broadcastRecord struct {
	peer Peer
	msg  *wire.Message
}

type fakeNetwork struct {
	mu        sync.Mutex
	peers     []Peer
	delivered []broadcastRecord

	// onBroadcast observes every non-nil message produced by a broadcast.
	onBroadcast func(p Peer, msg *wire.Message)
}

func (n *fakeNetwork) HandshakedPeers() []Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Peer(nil), n.peers...)
}

func (n *fakeNetwork) Broadcast(fn func(p Peer) *wire.Message) {
	n.mu.Lock()
	peers := append([]Peer(nil), n.peers...)
	onBroadcast := n.onBroadcast
	n.mu.Unlock()

	for _, p := range peers {
		msg := fn(p)
		if msg == nil {
			continue
		}
		n.mu.Lock()
		n.delivered = append(n.delivered, broadcastRecord{peer: p, msg: msg})
		n.mu.Unlock()
		if onBroadcast != nil {
			onBroadcast(p, msg)
		}
	}
}

func (n *fakeNetwork) deliveredMessages() []broadcastRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]broadcastRecord(nil), n.delivered...)
}

type testEnv struct {
	manager *Manager
	repo    *fakeRepo
	network *fakeNetwork
	blobs   *blobstore.Store
	clock   *fakeClock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	blobs, err := blobstore.NewStore(t.TempDir())
	require.NoError(t, err)

	repo := newFakeRepo()
	network := &fakeNetwork{}
	clock := &fakeClock{now: 1_000_000}

	opts.Clock = clock
	opts.Logger = logger.NewNop()
	if opts.ScavengeInterval == 0 {
		opts.ScavengeInterval = 10 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}

	m := NewManager(repo, network, blobs, opts)

	return &testEnv{manager: m, repo: repo, network: network, blobs: blobs, clock: clock}
}
