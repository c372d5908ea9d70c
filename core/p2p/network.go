package p2p

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velum/chaind/lib/cmap"
	"github.com/velum/chaind/lib/logger"
	"github.com/velum/chaind/rpc/wire"
)

// Handler receives inbound protocol messages that are not responses to a
// pending GetResponse call.
type Handler func(p *Peer, msg *wire.Message)

// Network owns the TCP listener and the set of handshaked peers.
type Network struct {
	nodeID     uuid.UUID
	listenAddr string
	handler    Handler
	log        *zap.SugaredLogger

	listener net.Listener
	peers    cmap.Map[uuid.UUID, *Peer]

	knownAddrs *addrSet

	closeOnce sync.Once
	closed    chan struct{}
}

func NewNetwork(listenAddr string, handler Handler) *Network {
	log, _ := logger.New("p2p")

	return &Network{
		nodeID:     uuid.New(),
		listenAddr: listenAddr,
		handler:    handler,
		log:        log,
		peers:      cmap.NewMap[uuid.UUID, *Peer](),
		knownAddrs: newAddrSet(),
		closed:     make(chan struct{}),
	}
}

func (n *Network) NodeID() uuid.UUID {
	return n.nodeID
}

// Start opens the listener and begins accepting inbound connections.
func (n *Network) Start() error {
	l, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("p2p listen: %w", err)
	}
	n.listener = l

	n.log.Infow("startup", "status", "p2p listener started", "address", l.Addr().String())
	go n.acceptLoop()

	return nil
}

// ListenAddr returns the bound listener address.
func (n *Network) ListenAddr() string {
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

func (n *Network) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
				n.log.Errorw("p2p", "error", "accept failed", "err", err)
				continue
			}
		}

		go func() {
			if _, err := n.setupPeer(conn, false, ""); err != nil {
				n.log.Debugw("p2p", "status", "inbound peer rejected", "err", err)
			}
		}()
	}
}

// Connect dials addr and performs the handshake. Idempotent per address.
func (n *Network) Connect(addr string) error {
	if !n.knownAddrs.add(addr) {
		return nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		n.knownAddrs.remove(addr)
		return fmt.Errorf("p2p dial %s: %w", addr, err)
	}

	peer, err := n.setupPeer(conn, true, addr)
	if err != nil {
		n.knownAddrs.remove(addr)
		return err
	}

	n.log.Infow("p2p", "status", "connected", "peer", peer.String(), "id", peer.ID().String())
	return nil
}

func (n *Network) setupPeer(conn net.Conn, outbound bool, dialAddr string) (*Peer, error) {
	peer := newPeer(conn, outbound, n.log)
	peer.dialAddr = dialAddr
	if err := peer.handshake(n.nodeID); err != nil {
		conn.Close()
		return nil, err
	}

	if peer.id == n.nodeID {
		conn.Close()
		return nil, fmt.Errorf("connected to self")
	}
	if !n.peers.SetIfAbsent(peer.id, peer) {
		conn.Close()
		return nil, fmt.Errorf("duplicate peer %s", peer.id)
	}

	peer.onClose = n.removePeer
	go peer.readLoop(n.handler)

	return peer, nil
}

func (n *Network) removePeer(p *Peer) {
	n.peers.Delete(p.id)
	if p.dialAddr != "" {
		n.knownAddrs.remove(p.dialAddr)
	}
	n.log.Infow("p2p", "status", "peer removed", "peer", p.String())
}

// HandshakedPeers returns every currently connected peer.
func (n *Network) HandshakedPeers() []*Peer {
	peers := make([]*Peer, 0)
	n.peers.Range(func(_ uuid.UUID, p *Peer) bool {
		peers = append(peers, p)
		return true
	})
	return peers
}

// Broadcast sends fn(peer) to every connected peer concurrently; returning
// nil from fn skips that peer.
func (n *Network) Broadcast(fn func(p *Peer) *wire.Message) {
	n.peers.Range(func(_ uuid.UUID, p *Peer) bool {
		msg := fn(p)
		if msg == nil {
			return true
		}
		go p.SendMessage(msg)
		return true
	})
}

// Shutdown closes the listener and every peer connection.
func (n *Network) Shutdown() {
	n.closeOnce.Do(func() {
		close(n.closed)
		if n.listener != nil {
			n.listener.Close()
		}
		for _, p := range n.HandshakedPeers() {
			p.close()
		}
	})
}
