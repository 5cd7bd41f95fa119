package debugsrv

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pucrs-maestro/maestro/cmn/nlog"
)

// Event is one line of the live kernel event stream pushed to any
// attached websocket client; cmd/maestro-sim publishes one per tile
// halt and no other kinds. It is
// deliberately much coarser than the Prometheus counters: this is a
// tail -f, not a metric.
type Event struct {
	Tile string `json:"tile"`
	Kind string `json:"kind"`
	Task string `json:"task,omitempty"`
	Note string `json:"note,omitempty"`
}

// eventHub fans one stream of Events out to every attached websocket
// client, dropping events for a client whose send buffer is full rather
// than blocking the simulation loop on a slow reader.
type eventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*websocket.Conn]chan Event)}
}

// Publish broadcasts ev to every attached client. Safe to call from any
// kernel goroutine.
func (h *eventHub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			nlog.Warnf("debugsrv: event client %s backpressured, dropping event", conn.RemoteAddr())
		}
	}
}

func (h *eventHub) add(conn *websocket.Conn) chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *eventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Publish exposes the hub so the kernel side of the simulator can push
// events without importing fasthttp or websocket itself.
func (s *Server) Publish(ev Event) { s.hub.Publish(ev) }

// ServeEvents upgrades to a websocket and streams Events until the
// client disconnects. fasthttp has no native websocket upgrade, so this
// runs on its own plain net/http listener — an operator-facing side
// channel, never on the simulated NoC path.
func (s *Server) ServeEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		nlog.Errorf("debugsrv: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := s.hub.add(conn)
	defer s.hub.remove(conn)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			nlog.Warnf("debugsrv: event client write: %v", err)
			return
		}
	}
}

// ListenAndServeEvents runs the websocket event stream on its own
// net/http listener at addr, alongside the fasthttp introspection API.
func (s *Server) ListenAndServeEvents(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.ServeEvents)
	return http.ListenAndServe(addr, mux)
}
