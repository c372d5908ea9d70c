package arbitrary

import "github.com/velum/chaind/lib/cmap"

// RequestState is the lifecycle position of one correlation entry.
type RequestState uint8

const (
	// StateOriginated: we sent the request; response not yet received.
	StateOriginated RequestState = iota
	// StateForwarding: we relayed Origin's request; response not yet received.
	StateForwarding
	// StateResolved: response received and fully processed.
	StateResolved
	// StateRelayPending: response received, relay to Origin not yet sent.
	StateRelayPending
)

// RequestRecord correlates an in-flight message id with its transaction
// signature and the peer the request came from.
//
// Signature58 empty means the response has already been received and
// processed. Origin nil means either we originated the request ourselves or
// the response has already been relayed to the original requester.
type RequestRecord struct {
	Signature58 string
	Origin      Peer
	CreatedAt   int64
}

// ResponsePending reports whether a response for this entry is still awaited.
func (r RequestRecord) ResponsePending() bool {
	return r.Signature58 != ""
}

func (r RequestRecord) State() RequestState {
	switch {
	case r.Signature58 != "" && r.Origin == nil:
		return StateOriginated
	case r.Signature58 != "":
		return StateForwarding
	case r.Origin == nil:
		return StateResolved
	default:
		return StateRelayPending
	}
}

// RequestTable is the correlation table from message id to request record.
// It is the single source of truth for request/response matching; handlers
// change entries by whole-record overwrite, never by in-place mutation.
type RequestTable struct {
	entries cmap.Map[uint32, RequestRecord]
}

func NewRequestTable() *RequestTable {
	return &RequestTable{
		entries: cmap.NewMap[uint32, RequestRecord](),
	}
}

// InsertIfAbsent stores rec under id only when id is unused. Returns true
// on insert.
func (t *RequestTable) InsertIfAbsent(id uint32, rec RequestRecord) bool {
	return t.entries.SetIfAbsent(id, rec)
}

// Insert overwrites the entry for id unconditionally.
func (t *RequestTable) Insert(id uint32, rec RequestRecord) {
	t.entries.Set(id, rec)
}

func (t *RequestTable) Get(id uint32) (RequestRecord, bool) {
	rec, ok := t.entries.Get(id)
	if !ok {
		return RequestRecord{}, false
	}
	return *rec, true
}

// RemoveOlderThan drops every entry created before cutoff.
func (t *RequestTable) RemoveOlderThan(cutoff int64) {
	t.entries.Range(func(id uint32, rec RequestRecord) bool {
		if rec.CreatedAt < cutoff {
			t.entries.Delete(id)
		}
		return true
	})
}

func (t *RequestTable) Len() int {
	return t.entries.Len()
}
