package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stakefarm/core/events"
	"stakefarm/core/types"
	"stakefarm/observability"
)

const (
	wsWriteTimeout   = 10 * time.Second
	defaultBufferLen = 64
)

type subscriber struct {
	ch     chan []byte
	filter map[string]struct{}
	once   sync.Once
}

func (s *subscriber) wants(typ string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[typ]
	return ok
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans ledger events out to websocket subscribers. Slow subscribers lose
// events rather than stalling the ledger.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	buffer  int
	closed  bool
	metrics *observability.StreamMetrics
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBufferLen
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		buffer:  buffer,
		metrics: observability.Stream(),
	}
}

// Emit implements events.Emitter. It never blocks.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	rendered, ok := events.Render(evt)
	if !ok {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	payload, err := json.Marshal(rendered)
	if err != nil {
		h.metrics.Dropped("encode")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if !sub.wants(rendered.Type) {
			continue
		}
		select {
		case sub.ch <- payload:
			h.metrics.Delivered()
		default:
			h.metrics.Dropped("slow_consumer")
		}
	}
}

// Subscribe registers a listener for the given event types, or all types when
// none are named. The returned cancel func is idempotent.
func (h *Hub) Subscribe(eventTypes []string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	for _, typ := range eventTypes {
		if trimmed := strings.TrimSpace(typ); trimmed != "" {
			if sub.filter == nil {
				sub.filter = make(map[string]struct{})
			}
			sub.filter[trimmed] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberJoined()

	cancel := func() {
		h.mu.Lock()
		_, ok := h.subs[sub]
		delete(h.subs, sub)
		h.mu.Unlock()
		if ok {
			sub.close()
			h.metrics.SubscriberLeft()
		}
	}
	return sub.ch, cancel
}

// Subscribers reports the number of connected listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber; later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.close()
		h.metrics.SubscriberLeft()
	}
	h.subs = make(map[*subscriber]struct{})
}

// ServeHTTP upgrades the request and streams events as JSON text frames. The
// optional types query parameter is a comma separated filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Clients never send; CloseRead cancels ctx when they hang up.
	ctx := conn.CloseRead(r.Context())
	updates, cancel := h.Subscribe(filter)
	defer cancel()

	if err := pump(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func pump(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
