package p2p

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velum/chaind/lib/cmap"
	"github.com/velum/chaind/rpc/wire"
)

const (
	responseTimeout  = 5 * time.Second
	handshakeTimeout = 5 * time.Second

	misbehaviorThreshold = 3
)

// Peer is one connected remote node. Outbound writes are serialized; a
// single read loop routes response frames to waiting GetResponse callers
// and hands everything else to the network's message handler.
type Peer struct {
	conn     net.Conn
	id       uuid.UUID
	outbound bool
	dialAddr string // address we dialed; empty for inbound peers
	log      *zap.SugaredLogger

	writeMu sync.Mutex
	pending cmap.Map[uint32, chan *wire.Message]

	strikes int32

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func(*Peer)
}

func newPeer(conn net.Conn, outbound bool, log *zap.SugaredLogger) *Peer {
	return &Peer{
		conn:     conn,
		outbound: outbound,
		log:      log,
		pending:  cmap.NewMap[uint32, chan *wire.Message](),
		closed:   make(chan struct{}),
	}
}

// handshake exchanges HELLO frames carrying each side's node id.
func (p *Peer) handshake(nodeID uuid.UUID) error {
	deadline := time.Now().Add(handshakeTimeout)
	if err := p.conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer p.conn.SetDeadline(time.Time{})

	hello := wire.NewHello(nodeID[:])
	p.writeMu.Lock()
	err := wire.Encode(p.conn, hello)
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	msg, err := wire.Decode(p.conn)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if msg.Type != wire.TypeHello {
		return fmt.Errorf("unexpected handshake message type %s", msg.Type)
	}

	id, err := uuid.FromBytes(msg.Data)
	if err != nil {
		return fmt.Errorf("bad hello payload: %w", err)
	}

	p.id = id
	return nil
}

func (p *Peer) ID() uuid.UUID {
	return p.id
}

func (p *Peer) String() string {
	return p.conn.RemoteAddr().String()
}

// SendMessage writes msg to the peer, reporting success. A write failure
// closes the connection.
func (p *Peer) SendMessage(msg *wire.Message) bool {
	select {
	case <-p.closed:
		return false
	default:
	}

	p.writeMu.Lock()
	err := wire.Encode(p.conn, msg)
	p.writeMu.Unlock()

	if err != nil {
		p.log.Debugw("peer", "status", "write failed", "peer", p.String(), "err", err)
		p.close()
		return false
	}
	return true
}

// GetResponse sends msg stamped with a fresh id and blocks for the reply
// carrying that id. Returns nil on timeout, send failure or disconnect.
func (p *Peer) GetResponse(msg *wire.Message) *wire.Message {
	ch := make(chan *wire.Message, 1)

	var id uint32
	for {
		id = uint32(rand.Int31n(math.MaxInt32-1)) + 1
		if p.pending.SetIfAbsent(id, ch) {
			break
		}
	}
	defer p.pending.Delete(id)

	msg.ID = id
	if !p.SendMessage(msg) {
		return nil
	}

	select {
	case response := <-ch:
		return response
	case <-time.After(responseTimeout):
		return nil
	case <-p.closed:
		return nil
	}
}

// readLoop decodes frames until the connection dies. Response frames are
// delivered to their waiting caller; the rest are dispatched to handle,
// each on its own goroutine.
func (p *Peer) readLoop(handle func(*Peer, *wire.Message)) {
	defer p.close()

	for {
		msg, err := wire.Decode(p.conn)
		if err != nil {
			select {
			case <-p.closed:
			default:
				p.log.Debugw("peer", "status", "read failed", "peer", p.String(), "err", err)
			}
			return
		}

		if ch, ok := p.pending.Get(msg.ID); ok {
			select {
			case *ch <- msg:
			default:
			}
			continue
		}

		go handle(p, msg)
	}
}

func (p *Peer) Disconnect(reason string) {
	p.log.Infow("peer", "status", "disconnecting", "peer", p.String(), "reason", reason)
	p.close()
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.conn.Close()
		if p.onClose != nil {
			p.onClose(p)
		}
	})
}

// MarkMisbehaving records one protocol strike against the peer.
func (p *Peer) MarkMisbehaving() {
	atomic.AddInt32(&p.strikes, 1)
}

// Misbehaved reports whether the peer has accumulated enough strikes to be
// excluded from data fetching.
func (p *Peer) Misbehaved() bool {
	return atomic.LoadInt32(&p.strikes) >= misbehaviorThreshold
}
