package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caiwatch/caiwatch/agent/internal/api"
	"github.com/caiwatch/caiwatch/agent/internal/store"
)

const (
	writeTimeout = 10 * time.Second

	// A subscriber that sends no pong within pongWait is dropped.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	queueDepth = 16

	// locationParam selects locations: ?location=home,office or repeated.
	locationParam = "location"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to subscribers.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub streams store snapshots to WebSocket subscribers. Each subscriber sees
// only the locations it asked for, or every location when it named none.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn   *websocket.Conn
	queue  chan []byte
	filter string          // sorted, comma-joined location ids; "" for all
	ids    map[string]bool // nil for all
}

// New creates a Hub reading from st that re-sends snapshots every interval
// even without a Broadcast.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Run sends a keep-alive snapshot every interval until ctx is cancelled, then
// disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case <-t.C:
			h.Broadcast()
		}
	}
}

// ServeHTTP upgrades the request, queues the current snapshot for the
// requested locations and streams until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ids := parseLocations(r.URL.Query()[locationParam])

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newSubscriber(conn, ids)
	if data, err := encode(filterSnapshot(api.BuildSnapshot(h.store), s.ids)); err == nil {
		s.queue <- data
	}
	h.add(s)
	defer h.remove(s)

	slog.Debug("ws: subscribed", "remote", conn.RemoteAddr(), "locations", s.filter)
	go s.forward()
	s.drain()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues the current snapshot for every subscriber. Payloads are
// encoded once per distinct location filter. A subscriber whose queue is full
// is disconnected.
func (h *Hub) Broadcast() {
	snap := api.BuildSnapshot(h.store)

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	payloads := make(map[string][]byte)
	for _, s := range subs {
		data, ok := payloads[s.filter]
		if !ok {
			var err error
			data, err = encode(filterSnapshot(snap, s.ids))
			if err != nil {
				slog.Error("ws: encode snapshot", "locations", s.filter, "err", err)
				continue
			}
			payloads[s.filter] = data
		}

		select {
		case s.queue <- data:
		default:
			slog.Warn("ws: subscriber too slow, disconnecting", "remote", s.conn.RemoteAddr())
			h.remove(s)
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

// remove closes s's queue exactly once.
func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.queue)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.queue)
	}
}

// parseLocations accepts repeated and comma-separated values. It returns nil
// when no location was named.
func parseLocations(values []string) map[string]bool {
	var ids map[string]bool
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id == "" {
				continue
			}
			if ids == nil {
				ids = make(map[string]bool)
			}
			ids[id] = true
		}
	}
	return ids
}

// filterSnapshot keeps the locations in ids, or all of them when ids is nil.
func filterSnapshot(snap api.SnapshotResponse, ids map[string]bool) api.SnapshotResponse {
	if ids == nil {
		return snap
	}
	out := api.SnapshotResponse{
		Locations:   make([]api.LocationResponse, 0, len(ids)),
		GeneratedAt: snap.GeneratedAt,
	}
	for _, loc := range snap.Locations {
		if ids[loc.LocationID] {
			out.Locations = append(out.Locations, loc)
		}
	}
	return out
}

func encode(snap api.SnapshotResponse) ([]byte, error) {
	return json.Marshal(Message{Event: "snapshot", Data: snap})
}

func newSubscriber(conn *websocket.Conn, ids map[string]bool) *subscriber {
	s := &subscriber{conn: conn, queue: make(chan []byte, queueDepth), ids: ids}
	if ids != nil {
		keys := make([]string, 0, len(ids))
		for id := range ids {
			keys = append(keys, id)
		}
		sort.Strings(keys)
		s.filter = strings.Join(keys, ",")
	}
	return s
}

// forward writes queued payloads and periodic pings until the queue closes
// or a write fails.
func (s *subscriber) forward() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-s.queue:
			if !ok {
				kind = websocket.CloseMessage
			} else {
				kind, data = websocket.TextMessage, msg
			}
		case <-ping.C:
			kind = websocket.PingMessage
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := s.conn.WriteMessage(kind, data); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// drain reads until the peer goes away; subscribers send nothing but
// control frames.
func (s *subscriber) drain() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
