package interconnect

import (
	"maps"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-tlm/tlm"
)

// hop is the route one router recorded for a transaction at BEGIN_REQ.
type hop struct {
	inPort  int
	outPort int
	// completed is set when the target finished the transaction while the initiator still
	// waits for its response.
	completed bool
}

// routeExtension carries the hops of every router a transaction passes through, so chained
// routers share one extension slot.
type routeExtension struct {
	hops map[*Router]hop
}

var _ tlm.Extension = (*routeExtension)(nil)

func (e *routeExtension) Clone() tlm.Extension {
	return &routeExtension{hops: maps.Clone(e.hops)}
}

func (e *routeExtension) CopyFrom(other tlm.Extension) {
	if o, ok := other.(*routeExtension); ok {
		e.hops = maps.Clone(o.hops)
	}
}

// routeStore persists hops between BEGIN_REQ and the end of a transaction.
type routeStore interface {
	store(t *tlm.Transaction, h hop)
	load(t *tlm.Transaction) (hop, bool)
	forget(t *tlm.Transaction)
}

// extensionStore keeps the hop of one router inside the transaction itself. The extension is
// automatic, so a transaction returned to its pool never carries stale routes.
type extensionStore struct {
	owner *Router
}

func (s extensionStore) store(t *tlm.Transaction, h hop) {
	ext, ok := tlm.GetExtension[*routeExtension](t)
	if !ok {
		ext = &routeExtension{hops: make(map[*Router]hop, 1)}
		tlm.SetAutoExtension(t, ext)
	}
	ext.hops[s.owner] = h
}

func (s extensionStore) load(t *tlm.Transaction) (hop, bool) {
	ext, ok := tlm.GetExtension[*routeExtension](t)
	if !ok {
		return hop{}, false
	}
	h, ok := ext.hops[s.owner]

	return h, ok
}

func (s extensionStore) forget(t *tlm.Transaction) {
	ext, ok := tlm.GetExtension[*routeExtension](t)
	if !ok {
		return
	}

	delete(ext.hops, s.owner)
	if len(ext.hops) == 0 {
		tlm.ClearExtension[*routeExtension](t)
	}
}

// tableStore keeps hops in a side table keyed by transaction identity.
type tableStore struct {
	routes *xsync.MapOf[*tlm.Transaction, hop]
}

func newTableStore() tableStore {
	return tableStore{routes: xsync.NewMapOf[*tlm.Transaction, hop]()}
}

func (s tableStore) store(t *tlm.Transaction, h hop) { s.routes.Store(t, h) }

func (s tableStore) load(t *tlm.Transaction) (hop, bool) { return s.routes.Load(t) }

func (s tableStore) forget(t *tlm.Transaction) { s.routes.Delete(t) }
