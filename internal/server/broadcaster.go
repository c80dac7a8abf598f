package server

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Broadcaster fans SSEEvent values out to every active GET /events client.
// Frames are encoded once; a subscriber whose buffer is full misses the frame
// rather than stalling the sender.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{})}
}

// subscribe returns a channel of ready-to-write SSE data frames. Callers must
// unsubscribe when their connection closes.
func (b *Broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *Broadcaster) send(evt SSEEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("server: failed to marshal SSE event", "type", evt.Type, "error", err)
		return
	}
	// SSE wire format: "data: <json>\n\n"
	frame := append([]byte("data: "), raw...)
	frame = append(frame, '\n', '\n')

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}
