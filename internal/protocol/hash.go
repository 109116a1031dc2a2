package protocol

import (
	"hash/fnv"

	"github.com/1ureka/slotcast/internal/channel"
)

// PeerHash16 folds a peer identity into the 16 bits an ACK frame has room
// for: FNV-1a over the id bytes, masked to the low half. Collisions between
// distinct peers are possible and deliberately left unresolved — the wire
// format has no spare bits for a wider identity.
func PeerHash16(p channel.PeerID) uint16 {
	h := fnv.New32a()
	h.Write([]byte(p))
	return uint16(h.Sum32() & 0xFFFF)
}
