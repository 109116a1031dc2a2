// Package channel defines the shared-slot substrate the slotcast protocol
// runs on: each peer owns exactly one slot holding three 24-bit integers,
// and remote peers observe a slot only by polling its current value.
package channel

import "time"

// PeerID is a stable, opaque identifier for a peer. It outlives any live
// connection handle, so protocol state can be keyed by it safely.
type PeerID string

// ComponentMax is the largest value one slot component can hold (2^24 - 1).
const ComponentMax uint32 = 1<<24 - 1

// Value is the content of one slot: three unsigned 24-bit integers.
// Each component must stay within [0, ComponentMax].
type Value [3]uint32

// Adapter is the primitive read/write access to the shared slot field.
// Write atomically replaces the local peer's whole slot; Read observes the
// current value of any peer's slot, with no history and no notification.
type Adapter interface {
	// Read returns the current value of the given peer's slot.
	// The second result is false when the peer has no readable slot.
	Read(peer PeerID) (Value, bool)

	// Write replaces the local peer's slot with v.
	Write(local PeerID, v Value)
}

// Directory enumerates the peers currently connected to the slot field.
// Membership changes become visible between polls; there is no join/leave
// notification.
type Directory interface {
	Peers() []PeerID
}

// Scheduler delivers the recurring tick notification that drives both
// polling and send pacing. Subscribe returns a channel carrying the elapsed
// time since the previous tick and a cancel function that releases the
// subscription. Ticks may be coalesced when a subscriber falls behind;
// on a last-write-wins channel that loses nothing.
type Scheduler interface {
	Subscribe() (<-chan time.Duration, func())
}
