package arbitrary

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/velum/chaind/core/blobstore"
	"github.com/velum/chaind/core/repository"
	"github.com/velum/chaind/lib/logger"
)

// RequestTimeout bounds the discovery poll and the lifetime of entries in
// both correlation containers.
const RequestTimeout = 5 * time.Second

const (
	defaultScavengeInterval = 2 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
)

// Manager discovers which peers hold the chunks of arbitrary-transaction
// payloads missing locally, fetches them, and serves the symmetric protocol
// to other peers.
type Manager struct {
	repo    Repository
	network Network
	blobs   *blobstore.Store
	clock   Clock
	log     *zap.SugaredLogger

	minBlockchainPeers int
	hasMisbehaved      func(Peer) bool

	scavengeInterval time.Duration
	pollInterval     time.Duration
	requestTimeout   time.Duration

	fileListRequests *RequestTable
	fileRequests     *InflightFetches

	Stats Stats

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Options configures collaborators that have sensible defaults.
type Options struct {
	MinBlockchainPeers int
	HasMisbehaved      func(Peer) bool
	Clock              Clock
	Logger             *zap.SugaredLogger

	// Loop cadences; zero means the defaults.
	ScavengeInterval time.Duration
	PollInterval     time.Duration
}

func NewManager(repo Repository, network Network, blobs *blobstore.Store, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger, _ = logger.New("arbitrary")
	}
	if opts.HasMisbehaved == nil {
		opts.HasMisbehaved = func(Peer) bool { return false }
	}
	if opts.ScavengeInterval == 0 {
		opts.ScavengeInterval = defaultScavengeInterval
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Manager{
		repo:               repo,
		network:            network,
		blobs:              blobs,
		clock:              opts.Clock,
		log:                opts.Logger,
		minBlockchainPeers: opts.MinBlockchainPeers,
		hasMisbehaved:      opts.HasMisbehaved,
		scavengeInterval:   opts.ScavengeInterval,
		pollInterval:       opts.PollInterval,
		requestTimeout:     RequestTimeout,
		fileListRequests:   NewRequestTable(),
		fileRequests:       NewInflightFetches(),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
	}
}

// Start launches the scavenger loop.
func (m *Manager) Start() {
	go m.run()
}

// Shutdown signals the scavenger to stop and waits for it to exit.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

// run is the scavenger loop: every couple of seconds pick one arbitrary
// transaction whose payload is not yet local and ask connected peers who
// has its chunks.
func (m *Manager) run() {
	defer close(m.done)

	for {
		select {
		case <-m.stop:
			return
		case <-time.After(m.scavengeInterval):
		}

		peers := m.network.HandshakedPeers()

		// Disregard peers that have misbehaved recently
		eligible := peers[:0]
		for _, p := range peers {
			if !m.hasMisbehaved(p) {
				eligible = append(eligible, p)
			}
		}

		// Don't fetch data if we don't have enough up-to-date peers
		if len(eligible) < m.minBlockchainPeers {
			continue
		}

		ctx := context.Background()
		signatures, err := m.repo.ArbitraryTransactionSignatures(ctx)
		if err != nil {
			m.log.Errorw("scavenge", "error", "failed to list arbitrary transactions", "err", err)
			continue
		}

		missing := signatures[:0]
		for _, sig := range signatures {
			if !m.hasLocalData(ctx, sig) {
				missing = append(missing, sig)
			}
		}
		if len(missing) == 0 {
			continue
		}

		// Pick one at random so multiple nodes don't converge on the same
		// transaction.
		signature := missing[rand.Intn(len(missing))]
		m.findFileList(signature)
	}
}

// hasLocalData reports whether the payload for signature is wholly held
// locally. Lookup failures count as local so the scavenger skips them.
func (m *Manager) hasLocalData(ctx context.Context, signature []byte) bool {
	tx, err := m.repo.TransactionBySignature(ctx, signature)
	if err != nil {
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			m.log.Errorw("scavenge", "error", "failed to load transaction", "err", err)
		}
		return true
	}
	if !tx.IsArbitrary() {
		return true
	}

	blob := m.blobs.FromHash(tx.Data)
	if err := blob.AddChunkHashes(tx.ChunkHashes); err != nil {
		m.log.Errorw("scavenge", "error", "bad chunk manifest", "signature", tx.Signature58())
		return true
	}
	return blob.IsDataLocal()
}

// CleanupRequestCache drops expired entries from both correlation
// containers. Called from the node's housekeeping timer. Idempotent.
func (m *Manager) CleanupRequestCache(now int64) {
	cutoff := now - m.requestTimeout.Milliseconds()
	m.fileListRequests.RemoveOlderThan(cutoff)
	m.fileRequests.RemoveOlderThan(cutoff)
}
