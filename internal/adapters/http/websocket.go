package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// wsMessage is sent from client to narrow or widen the feed.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Site   string `json:"site"`   // site id, "" = all sites
}

// wsFilter holds the sites a client follows. An empty filter with all set
// passes everything.
type wsFilter struct {
	mu    sync.Mutex
	all   bool
	sites map[string]bool
}

func (f *wsFilter) match(siteID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all || f.sites[siteID]
}

// apply updates the filter and returns the status line for the client.
func (f *wsFilter) apply(m wsMessage) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := m.Site
	if target == "" {
		target = "*"
	}
	switch m.Action {
	case "subscribe":
		if m.Site == "" {
			f.all = true
		} else {
			f.sites[m.Site] = true
		}
		return map[string]string{"status": "subscribed", "site": target}
	case "unsubscribe":
		if m.Site == "" {
			f.all = false
			f.sites = make(map[string]bool)
		} else {
			delete(f.sites, m.Site)
		}
		return map[string]string{"status": "unsubscribed", "site": target}
	}
	return map[string]string{"error": "unknown action: " + m.Action}
}

// WebSocketHandler returns a handler that relays confirmed transitions to
// connected clients. Clients start on all sites and may send
// {"action":"unsubscribe"} then {"action":"subscribe","site":"taj-mahal"}
// to follow single sites.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		filter := &wsFilter{all: true, sites: make(map[string]bool)}
		events, cancel := deps.Engine.Subscribe(32)
		defer cancel()

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					if !filter.match(ev.SiteID) {
						continue
					}
					if err := writeJSON(struct {
						Type  string                          `json:"type"`
						Event domain.ConfirmedTransitionEvent `json:"event"`
					}{"transition", ev}); err != nil {
						return
					}
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			_ = writeJSON(filter.apply(m))
		}

		close(done)
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
