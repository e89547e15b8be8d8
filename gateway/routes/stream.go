package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"credo/core/events"
)

const (
	streamHistoryLimit = 1024
	streamBuffer       = 64
	wsWriteTimeout     = 10 * time.Second
)

// StreamUpdate is one committed ledger event as delivered to stream clients.
type StreamUpdate struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func cloneUpdate(u StreamUpdate) StreamUpdate {
	attrs := make(map[string]string, len(u.Attributes))
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	u.Attributes = attrs
	return u
}

// Hub fans committed events out to websocket subscribers and keeps a bounded
// history so clients can resume from a cursor. Slow subscribers miss updates
// rather than stall the ledger.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamUpdate
	history []StreamUpdate
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan StreamUpdate)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	wire := events.Flatten(evt)
	if h == nil || wire == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	update := StreamUpdate{
		Sequence:   h.seq,
		Cursor:     strconv.FormatUint(h.seq, 10),
		Type:       wire.Type,
		Attributes: wire.Attributes,
	}
	h.history = append(h.history, cloneUpdate(update))
	if len(h.history) > streamHistoryLimit {
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, h.history[len(h.history)-streamHistoryLimit:])
		h.history = trimmed
	}
	for _, ch := range h.subs {
		select {
		case ch <- cloneUpdate(update):
		default:
		}
	}
}

// Subscribe registers a subscriber for updates after cursor. The returned
// cancel func is idempotent and also runs when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, cursor string) (<-chan StreamUpdate, func(), []StreamUpdate) {
	updates := make(chan StreamUpdate, streamBuffer)
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]StreamUpdate, 0, len(h.history))
	for _, entry := range h.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneUpdate(entry))
		}
	}
	h.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			h.mu.Lock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return updates, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "event stream disabled")
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Clients only listen; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := a.stream(ctx, conn, cursor, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (a *api) stream(ctx context.Context, conn *websocket.Conn, cursor, filter string) error {
	updates, cancel, backlog := a.hub.Subscribe(ctx, cursor)
	defer cancel()

	for _, update := range backlog {
		if filter != "" && update.Type != filter {
			continue
		}
		if err := writeUpdate(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if filter != "" && update.Type != filter {
				continue
			}
			if err := writeUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update StreamUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
