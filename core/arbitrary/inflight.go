package arbitrary

import "github.com/velum/chaind/lib/cmap"

// InflightFetches tracks chunk hashes with an outstanding GET_FILE request,
// keyed by the hash's base58 form. Membership means no new fetch for that
// hash may start.
type InflightFetches struct {
	hashes cmap.Map[string, int64]
}

func NewInflightFetches() *InflightFetches {
	return &InflightFetches{
		hashes: cmap.NewMap[string, int64](),
	}
}

// TryAcquire atomically marks hash58 as in flight. Returns false when a
// fetch for this hash is already outstanding.
func (f *InflightFetches) TryAcquire(hash58 string, now int64) bool {
	return f.hashes.SetIfAbsent(hash58, now)
}

func (f *InflightFetches) Release(hash58 string) {
	f.hashes.Delete(hash58)
}

func (f *InflightFetches) Contains(hash58 string) bool {
	return f.hashes.Has(hash58)
}

// RemoveOlderThan drops marks placed before cutoff.
func (f *InflightFetches) RemoveOlderThan(cutoff int64) {
	f.hashes.Range(func(hash58 string, at int64) bool {
		if at < cutoff {
			f.hashes.Delete(hash58)
		}
		return true
	})
}

func (f *InflightFetches) Len() int {
	return f.hashes.Len()
}
