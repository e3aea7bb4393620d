package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/delta"
)

// upgrader mirrors bennypowers-cem's serve/websocket.go: generous write
// buffer (HMR payloads can carry whole modules plus stack traces), origin
// check relaxed to localhost-class connections since this is a local dev
// tool, not a public-facing service.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hotClient is one connected /hot WebSocket (spec.md §4.8): wraps the
// connection with a write mutex so concurrent broadcasts don't race, and
// records which platform it registered for.
type hotClient struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	platform config.Platform
}

func (c *hotClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *hotClient) close() {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

// incomingMessage is the shape of every client->server /hot frame
// spec.md §4.8 names: register-entrypoints, log, log-opt-in, or anything
// else (treated as a malformed/unknown protocol message).
type incomingMessage struct {
	Type        string   `json:"type"`
	EntryPoints []string `json:"entryPoints"`
}

// handleHot upgrades the request to a WebSocket and runs its read loop
// (spec.md §4.8). Writes (update-start/update/update-done/error) are
// pushed from onFileChanges via broadcastUpdate/broadcastError; this
// goroutine only reads, to detect disconnects and to answer
// register-entrypoints synchronously.
func (s *Server) handleHot(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &hotClient{conn: conn, platform: s.BaseConfig.Platform}
	s.hotMu.Lock()
	s.clients[client] = true
	s.hotMu.Unlock()

	defer func() {
		s.hotMu.Lock()
		delete(s.clients, client)
		s.hotMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleHotMessage(client, data)
	}
}

// handleHotMessage answers register-entrypoints with bundle-registered,
// acknowledges log/log-opt-in, logs and ignores a malformed frame
// (ProtocolError per spec.md §7), and ignores unrecognized message types;
// neither case disconnects the client.
func (s *Server) handleHotMessage(client *hotClient, data []byte) {
	var msg incomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Fprintf(os.Stderr, "[hot] ignoring malformed message: %v\n", err)
		return
	}

	switch msg.Type {
	case "register-entrypoints":
		if len(msg.EntryPoints) > 0 {
			client.platform = s.platformForEntrypoint(msg.EntryPoints[0])
		}
		_ = client.writeJSON(map[string]string{"type": "bundle-registered"})
		if len(msg.EntryPoints) > 0 {
			s.sendInitialUpdate(client, msg.EntryPoints[0])
		}
	case "log", "log-opt-in":
		// acknowledged, nothing further to do — the client's log messages
		// are informational only (spec.md §4.8).
	default:
		// unrecognized message type: ignored, not disconnected.
	}
}

func (s *Server) platformForEntrypoint(string) config.Platform {
	return s.BaseConfig.Platform
}

// sendInitialUpdate builds (or reuses) entryPoint's BuildState and sends it
// down client as an isInitialUpdate:true `update` frame, the first thing a
// newly registered client needs to populate its module registry without a
// separate bundle fetch (spec.md §4.7).
func (s *Server) sendInitialUpdate(client *hotClient, entryPoint string) {
	ps := s.platformFor(client.platform, s.BaseConfig.Dev)
	entry := entryPoint
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(s.BaseConfig.Root, entry)
	}

	ps.mu.Lock()
	if ps.state == nil {
		st, err := ps.engine.InitialBuild(entry)
		if err != nil {
			ps.mu.Unlock()
			s.broadcastError(client.platform, err)
			return
		}
		ps.state = st
	}
	state := ps.state
	ps.mu.Unlock()

	msg, err := delta.BuildInitialUpdateMessage(state, ps.cfg)
	if err != nil {
		s.broadcastError(client.platform, err)
		return
	}
	_ = client.writeJSON(map[string]any{"type": "update-start", "body": map[string]bool{"isInitialUpdate": true}})
	_ = client.writeRaw(msg)
	_ = client.writeJSON(map[string]string{"type": "update-done"})
}

// broadcastUpdate sends the update-start/update/update-done triple to
// every client registered for platform (spec.md §4.7, §5: HMR messages
// for a platform are emitted in strict arrival order and never
// interleaved with another group — s.hotMu plus each client's own
// writeMu-guarded writer are enough since onFileChanges processes one
// platform's rebuild at a time).
func (s *Server) broadcastUpdate(platform config.Platform, state *delta.BuildState, d *delta.Delta) {
	updateMsg, err := delta.BuildUpdateMessage(state, d, s.platformConfig(platform))
	if err != nil {
		s.broadcastError(platform, err)
		return
	}

	for _, c := range s.clientsFor(platform) {
		_ = c.writeJSON(map[string]any{"type": "update-start", "body": map[string]bool{"isInitialUpdate": false}})
		_ = c.writeRaw(updateMsg)
		_ = c.writeJSON(map[string]string{"type": "update-done"})
	}
}

func (c *hotClient) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// broadcastError sends an `error` frame to every client on platform
// (spec.md §7); cache invalidation for the next bundle request is the
// caller's (onFileChanges') job via ps.dirty.
func (s *Server) broadcastError(platform config.Platform, err error) {
	msg := map[string]any{
		"type": "error",
		"body": map[string]string{
			"type":    "TransformError",
			"message": err.Error(),
		},
	}
	for _, c := range s.clientsFor(platform) {
		_ = c.writeJSON(msg)
	}
}

func (s *Server) clientsFor(platform config.Platform) []*hotClient {
	s.hotMu.Lock()
	defer s.hotMu.Unlock()
	out := make([]*hotClient, 0, len(s.clients))
	for c := range s.clients {
		if c.platform == platform {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) platformConfig(platform config.Platform) config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.platforms[platform]; ok {
		return ps.cfg
	}
	cfg := s.BaseConfig
	cfg.Platform = platform
	return cfg
}
