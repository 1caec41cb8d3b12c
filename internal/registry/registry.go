// Package registry maintains a bounded, freshness-aware cache of
// per-device sensor readings assembled from split advertisements.
//
// Sensors broadcast their state across two packets that arrive
// independently: manufacturer-specific data in the primary
// advertisement and service data in the scan response. The registry
// correlates the halves by sender address and tracks the most
// recently completed merged reading.
package registry

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/swbot/pkg/adv"
)

const (
	// SlotCount is the fixed number of concurrently tracked devices.
	// Once every slot is occupied, events for unseen addresses are
	// silently dropped; slots are never reclaimed.
	SlotCount = 12

	// MaxPayload caps each stored payload at the maximum size of a
	// single AD-structure value.
	MaxPayload = 31
)

// Transition describes what an Ingest call did to the registry.
type Transition int

const (
	// TransitionDropped means the event was for an unseen address and
	// no free slot remained.
	TransitionDropped Transition = iota

	// TransitionUpdated means the record was created or refreshed
	// without completing a merged reading.
	TransitionUpdated

	// TransitionMerged means this event completed the record: it now
	// holds both halves and passes the vendor check. Reported only on
	// the not-valid to valid edge.
	TransitionMerged
)

// record is one device slot. Payloads are stored inline so the
// registry performs no allocation after construction.
type record struct {
	addr  [6]byte
	inUse bool

	rssi int8

	haveMfg bool
	mfgLen  uint8
	mfg     [MaxPayload]byte

	haveSvc bool
	svcLen  uint8
	svc     [MaxPayload]byte

	deviceID     uint16
	haveDeviceID bool
}

// valid reports whether the record is a complete merged reading: both
// halves present and the manufacturer payload starting with the
// little-endian vendor company identifier.
func (r *record) valid(companyID uint16) bool {
	return r.haveMfg && r.haveSvc &&
		r.mfgLen >= 2 &&
		r.mfg[0] == byte(companyID) && r.mfg[1] == byte(companyID>>8)
}

// deriveID recomputes the device id from manufacturer payload bytes
// 6..7 (big-endian). Payloads shorter than 8 bytes leave the id unset.
func (r *record) deriveID() {
	if r.haveMfg && r.mfgLen >= 8 {
		r.deviceID = uint16(r.mfg[6])<<8 | uint16(r.mfg[7])
		r.haveDeviceID = true
	}
}

// Snapshot is an owned copy of a device record, taken under the
// registry lock and safe to use after it is released.
type Snapshot struct {
	Addr         [6]byte
	RSSI         int8
	Service      []byte
	Manufacturer []byte
	DeviceID     uint16
	HasDeviceID  bool
}

// MergeEvent is published each time a record transitions into a valid
// merged reading.
type MergeEvent struct {
	Addr        [6]byte
	RSSI        int8
	DeviceID    uint16
	HasDeviceID bool
}

// Registry is the bounded device table. A single mutex guards the slot
// array and the latest pointer; it is shared by the ingest path and
// all readers, and is never held across a call into a collaborator.
type Registry struct {
	mu     sync.Mutex
	slots  [SlotCount]record
	latest int // slot index of the most recently completed reading, -1 for none

	companyID uint16
	events    *RingChannel[MergeEvent]
	logger    *logrus.Logger

	dropped uint64
}

// New creates an empty registry that accepts readings from the given
// vendor company identifier.
func New(companyID uint16, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		latest:    -1,
		companyID: companyID,
		events:    NewRingChannel[MergeEvent](64),
		logger:    logger,
	}
}

// Events returns the merge-event stream. Events are dropped, never
// blocked on, when the consumer falls behind.
func (g *Registry) Events() <-chan MergeEvent {
	return g.events.C()
}

// findOrAlloc returns the slot index for addr, allocating the first
// free slot on first sighting. Returns -1 when the table is full and
// the address is unseen. Caller must hold the lock.
func (g *Registry) findOrAlloc(addr [6]byte) int {
	for i := range g.slots {
		if g.slots[i].inUse && g.slots[i].addr == addr {
			return i
		}
	}
	for i := range g.slots {
		if !g.slots[i].inUse {
			g.slots[i] = record{addr: addr, inUse: true}
			return i
		}
	}
	return -1
}

// Ingest merges one discovery event into the registry. The rssi is
// updated unconditionally; each payload half is copied in when present
// and within MaxPayload, independently of the other. A record is
// promoted to the latest reading only at the moment it transitions
// from incomplete to complete, so repeated packets from an
// already-merged device cannot steal "latest" from a device that just
// finished merging.
func (g *Registry) Ingest(addr [6]byte, rssi int8, ex adv.Extract) Transition {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.findOrAlloc(addr)
	if idx < 0 {
		g.dropped++
		g.logger.WithField("dropped_total", g.dropped).
			Debug("device table full, event dropped")
		return TransitionDropped
	}
	rec := &g.slots[idx]

	wasValid := rec.valid(g.companyID)

	rec.rssi = rssi
	if ex.HasManufacturer && len(ex.Manufacturer) <= MaxPayload {
		rec.mfgLen = uint8(copy(rec.mfg[:], ex.Manufacturer))
		rec.haveMfg = true
	}
	if ex.HasService && len(ex.Service) <= MaxPayload {
		rec.svcLen = uint8(copy(rec.svc[:], ex.Service))
		rec.haveSvc = true
	}

	validNow := rec.valid(g.companyID)

	// Keep the cached id coherent with the live manufacturer bytes on
	// every event that leaves the record valid, not just the merge edge.
	if validNow {
		rec.deriveID()
	}

	if wasValid || !validNow {
		return TransitionUpdated
	}

	g.latest = idx
	g.events.Send(MergeEvent{
		Addr:        rec.addr,
		RSSI:        rec.rssi,
		DeviceID:    rec.deviceID,
		HasDeviceID: rec.haveDeviceID,
	})
	return TransitionMerged
}

// ReadLatest returns a snapshot of the most recently completed merged
// reading, or false if no device has ever completed one.
func (g *Registry) ReadLatest() (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.latest < 0 {
		return Snapshot{}, false
	}
	return g.snapshotLocked(g.latest), true
}

// ReadByDeviceID scans occupied slots in index order and returns the
// first currently-valid record whose derived device id matches id. The
// cached id is trusted: Ingest rederives it on every event that leaves
// the record valid.
func (g *Registry) ReadByDeviceID(id uint16) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.slots {
		rec := &g.slots[i]
		if !rec.inUse || !rec.valid(g.companyID) {
			continue
		}
		if rec.haveDeviceID && rec.deviceID == id {
			return g.snapshotLocked(i), true
		}
	}
	return Snapshot{}, false
}

// snapshotLocked copies the record at idx. Caller must hold the lock.
func (g *Registry) snapshotLocked(idx int) Snapshot {
	rec := &g.slots[idx]
	return Snapshot{
		Addr:         rec.addr,
		RSSI:         rec.rssi,
		Service:      append([]byte(nil), rec.svc[:rec.svcLen]...),
		Manufacturer: append([]byte(nil), rec.mfg[:rec.mfgLen]...),
		DeviceID:     rec.deviceID,
		HasDeviceID:  rec.haveDeviceID,
	}
}

// Occupied returns the number of slots holding live data.
func (g *Registry) Occupied() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for i := range g.slots {
		if g.slots[i].inUse {
			n++
		}
	}
	return n
}
