package relay

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/slotcast/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server hosts named slot fields. Each connected peer owns one slot in its
// field; the server keeps the authoritative values and fans out updates.
type Server struct {
	listener net.Listener

	mu     sync.Mutex
	fields map[string]*field
}

// field is one shared slot namespace.
type field struct {
	peers map[string]*peerConn
}

// peerConn is one connected peer: its WebSocket and its current slot.
// writeMu serializes concurrent WriteJSON calls fanning out to this peer.
type peerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	value   [3]uint32
	set     bool
}

// NewServer creates a relay server with no fields yet; fields materialize
// when the first peer joins them.
func NewServer() *Server {
	return &Server{fields: make(map[string]*field)}
}

// Start begins listening on the given port (0 picks a random one).
// Returns the assigned port number.
func (s *Server) Start(port int) (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Close shuts down the listener, preventing new connections. Existing
// connections drop when their read loops fail.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	fieldName := r.URL.Query().Get("field")
	peerName := r.URL.Query().Get("peer")
	if fieldName == "" || peerName == "" {
		http.Error(w, "missing field or peer", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	pc := &peerConn{conn: conn}
	if !s.register(fieldName, peerName, pc) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "peer name taken"))
		conn.Close()
		return
	}
	util.LogInfo("relay: %s joined field %q", peerName, fieldName)

	s.readLoop(fieldName, peerName, pc)

	s.unregister(fieldName, peerName)
	conn.Close()
	util.LogInfo("relay: %s left field %q", peerName, fieldName)
}

// register adds a peer to its field, sends it the field snapshot, and
// announces the join to everyone else. Returns false when the name is
// already taken in that field.
func (s *Server) register(fieldName, peerName string, pc *peerConn) bool {
	s.mu.Lock()
	f, ok := s.fields[fieldName]
	if !ok {
		f = &field{peers: make(map[string]*peerConn)}
		s.fields[fieldName] = f
	}
	if _, taken := f.peers[peerName]; taken {
		s.mu.Unlock()
		return false
	}
	f.peers[peerName] = pc

	snapshot := message{Type: msgTypeSnapshot}
	for name, other := range f.peers {
		if name == peerName {
			continue
		}
		snapshot.Peers = append(snapshot.Peers, peerState{
			Peer:  name,
			Value: other.value,
			Set:   other.set,
		})
	}
	others := f.everyoneExcept(peerName)
	s.mu.Unlock()

	pc.send(snapshot)
	for _, other := range others {
		other.send(message{Type: msgTypeJoin, Peer: peerName})
	}
	return true
}

// unregister removes a peer and announces the departure.
func (s *Server) unregister(fieldName, peerName string) {
	s.mu.Lock()
	f, ok := s.fields[fieldName]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(f.peers, peerName)
	if len(f.peers) == 0 {
		delete(s.fields, fieldName)
	}
	others := f.everyoneExcept(peerName)
	s.mu.Unlock()

	for _, other := range others {
		other.send(message{Type: msgTypeLeave, Peer: peerName})
	}
}

// readLoop consumes state updates from one peer and fans them out to the
// rest of the field. It returns when the connection fails or closes.
func (s *Server) readLoop(fieldName, peerName string, pc *peerConn) {
	for {
		var msg message
		if err := pc.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != msgTypeState {
			continue
		}

		s.mu.Lock()
		f, ok := s.fields[fieldName]
		if !ok {
			s.mu.Unlock()
			return
		}
		pc.value = msg.Value
		pc.set = true
		others := f.everyoneExcept(peerName)
		s.mu.Unlock()

		out := message{Type: msgTypeState, Peer: peerName, Value: msg.Value, Set: true}
		for _, other := range others {
			other.send(out)
		}
	}
}

// everyoneExcept returns the field's peers other than the named one.
// Caller holds the server lock.
func (f *field) everyoneExcept(peerName string) []*peerConn {
	out := make([]*peerConn, 0, len(f.peers))
	for name, pc := range f.peers {
		if name != peerName {
			out = append(out, pc)
		}
	}
	return out
}

// send writes one message, guarded by the per-connection mutex.
// Errors are ignored: a broken connection cleans itself up in its read loop.
func (pc *peerConn) send(msg message) {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	_ = pc.conn.WriteJSON(msg)
}
