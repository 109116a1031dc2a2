// Package relay realizes the shared slot field over the network: a
// WebSocket server holds the authoritative peer→slot map for each named
// field and fans out slot writes, while the client side mirrors remote
// slots locally so the protocol can keep polling. Only slot values travel
// here — the relay is the channel substrate, not a message transport.
package relay

// Wire message types exchanged between relay server and clients.
const (
	msgTypeSnapshot = "snapshot" // server → client on join: full field state
	msgTypeState    = "state"    // slot value update (both directions)
	msgTypeJoin     = "join"     // server → clients: a peer appeared
	msgTypeLeave    = "leave"    // server → clients: a peer departed
)

// message is the JSON envelope for all relay traffic. Clients omit Peer on
// state updates; the server attributes them by connection.
type message struct {
	Type  string      `json:"type"`
	Peer  string      `json:"peer,omitempty"`
	Value [3]uint32   `json:"value,omitempty"`
	Set   bool        `json:"set,omitempty"`
	Peers []peerState `json:"peers,omitempty"`
}

// peerState is one entry of a snapshot. Set is false for peers that joined
// but have not written their slot yet.
type peerState struct {
	Peer  string    `json:"peer"`
	Value [3]uint32 `json:"value"`
	Set   bool      `json:"set"`
}
