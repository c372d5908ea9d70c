package arbitrary

import "sync/atomic"

// Counter is a cumulative message counter.
type Counter int64

func (c *Counter) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

func (c *Counter) Value() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats holds the manager's per-message-type counters.
type Stats struct {
	GetArbitraryDataFileListMessageStats struct {
		Requests Counter
	}
	GetArbitraryDataFileMessageStats struct {
		Requests     Counter
		UnknownFiles Counter
	}
}
