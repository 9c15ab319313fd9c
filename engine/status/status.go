// Package status serves loader metrics, loaded maps and a live event stream
// over HTTP for external tooling.
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

// MapSource lists the ids of the currently loaded maps.
type MapSource interface {
	MapIDs() []string
}

var eventNames = map[core.SystemEventCode]string{
	core.EVENT_CODE_RESOURCE_LOADED: "resource_loaded",
	core.EVENT_CODE_RESOURCE_FAILED: "resource_failed",
	core.EVENT_CODE_JOB_COMPLETED:   "job_completed",
	core.EVENT_CODE_ASSET_CHANGED:   "asset_changed",
	core.EVENT_CODE_MAP_LOADED:      "map_loaded",
	core.EVENT_CODE_MAP_SAVED:       "map_saved",
}

type event struct {
	Event   string    `json:"event"`
	Subject string    `json:"subject,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Count   int       `json:"count,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Server struct {
	addr    string
	maps    MapSource
	started time.Time

	mu      sync.Mutex
	clients map[*client]bool

	upgrader websocket.Upgrader
	http     *http.Server
	listener net.Listener
}

/**
 * @brief Creates a status server and subscribes it to studio events.
 * core.EventInitialize must have been called.
 */
func New(addr string, maps MapSource) *Server {
	s := &Server{
		addr:    addr,
		maps:    maps,
		started: time.Now(),
		clients: make(map[*client]bool),
	}
	for code := range eventNames {
		core.EventRegister(code, s, s.onEvent)
	}
	return s
}

// Handler returns the routes wrapped with panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/maps", s.handleMaps).Methods(http.MethodGet)
	r.HandleFunc("/maps/{id}", s.handleMap).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket)

	var h http.Handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
	return handlers.LoggingHandler(core.LogWriter(), h)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		core.LogError("status server: %s", err)
		return err
	}
	s.listener = l
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	core.LogInfo("status server listening on %s", l.Addr())
	go func() {
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			core.LogError("status server: %s", err)
		}
	}()
	return nil
}

// Addr is the bound address once started, the configured one otherwise.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown unsubscribes from events, closes websocket clients and stops serving.
func (s *Server) Shutdown(ctx context.Context) error {
	for code := range eventNames {
		core.EventUnregister(code, s)
	}
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		core.LogWarn("status: encode response: %s", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		core.MetricsSnapshot
		UptimeSeconds float64 `json:"uptime_s"`
	}{core.MetricsGet(), time.Since(s.started).Seconds()})
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	ids := s.maps.MapIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"maps": ids})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !slices.Contains(s.maps.MapIDs(), id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "map not loaded", "id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "loaded": true})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		core.LogWarn("status: websocket upgrade: %s", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}

	hello, _ := json.Marshal(event{Event: "hello", Time: time.Now()})
	c.send <- hello

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

// readPump drains control frames and drops the client once it goes away.
func (s *Server) readPump(c *client) {
	defer s.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				core.LogDebug("status: ws write: %s", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				core.LogDebug("status: ws ping: %s", err)
				return
			}
		}
	}
}

// onEvent runs on the firing goroutine, often a loader worker, so slow
// clients lose messages instead of blocking it.
func (s *Server) onEvent(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	e := event{
		Event:   eventNames[code],
		Subject: data.Subject,
		Detail:  data.Detail,
		Count:   data.Count,
		Time:    time.Now(),
	}
	if data.Err != nil {
		e.Error = data.Err.Error()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		core.LogWarn("status: encode event: %s", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			core.LogDebug("status: client too slow, dropped %s", e.Event)
		}
	}
	return false
}
