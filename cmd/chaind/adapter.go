package main

import (
	"github.com/velum/chaind/core/arbitrary"
	"github.com/velum/chaind/core/p2p"
	"github.com/velum/chaind/rpc/wire"
)

// networkAdapter exposes the p2p network through the manager's interface.
type networkAdapter struct {
	net *p2p.Network
}

func (a *networkAdapter) HandshakedPeers() []arbitrary.Peer {
	peers := a.net.HandshakedPeers()

	out := make([]arbitrary.Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, p)
	}
	return out
}

func (a *networkAdapter) Broadcast(fn func(p arbitrary.Peer) *wire.Message) {
	a.net.Broadcast(func(p *p2p.Peer) *wire.Message {
		return fn(p)
	})
}
