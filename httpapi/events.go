package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// event is a status notification broadcast to /events watchers. It carries no
// session state, authentication, or video payload, only ephemeral status
// lines for a status page to render.
type event struct {
	Kind string `json:"kind"`
	At   string `json:"at"`
	Addr string `json:"addr,omitempty"`
}

// eventBus fans status events out to connected /events websocket clients.
// Grounded on Ch00k-kindavm's websocket.Accept/conn.Write pattern.
type eventBus struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventBus(log *zap.Logger) *eventBus {
	return &eventBus{log: log, clients: make(map[*websocket.Conn]struct{})}
}

func (b *eventBus) publish(kind, addr string) {
	payload, err := json.Marshal(event{Kind: kind, At: time.Now().UTC().Format(time.RFC3339), Addr: addr})
	if err != nil {
		b.log.Warn("marshal status event", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			delete(b.clients, conn)
			_ = conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
}

func (b *eventBus) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		b.log.Debug("websocket accept failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
