package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"

	"github.com/gorilla/websocket"
)

// FeedFrame is the JSON structure sent to every renderer.
type FeedFrame struct {
	Telemetry ecu.Reading     `json:"telemetry"`
	Lights    *lighting.State `json:"lights,omitempty"`
	Stamp     int64           `json:"stamp"` // unix ms
}

// FeedCommand is what a renderer may send back.
type FeedCommand struct {
	Command string `json:"command"`
}

// FeedServer broadcasts telemetry to WebSocket renderers and accepts touch
// commands from them.
type FeedServer struct {
	log       *LeveledLogger
	addr      string
	interval  time.Duration
	store     ecu.TelemetryReader
	lights    *lighting.Controller // nil when lighting is disabled
	commander *Commander

	clients   map[*feedClient]struct{}
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewFeedServer(logger *LeveledLogger, addr string, interval time.Duration, store ecu.TelemetryReader, lights *lighting.Controller, commander *Commander) *FeedServer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &FeedServer{
		log:       logger,
		addr:      addr,
		interval:  interval,
		store:     store,
		lights:    lights,
		commander: commander,
		clients:   make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *FeedServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	return mux
}

// Run serves the feed until ctx is cancelled.
func (s *FeedServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go s.broadcastLoop(ctx)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info("Renderer feed listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *FeedServer) Frame() FeedFrame {
	frame := FeedFrame{
		Telemetry: s.store.Read(),
		Stamp:     time.Now().UnixMilli(),
	}
	if s.lights != nil {
		st := s.lights.State()
		frame.Lights = &st
	}
	return frame
}

func (s *FeedServer) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() > 0 {
				s.broadcast(s.Frame())
			}
		}
	}
}

func (s *FeedServer) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *FeedServer) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Frame())
}

func (s *FeedServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade error: %v", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.log.Info("Renderer connected (%d total)", n)

	if data, err := json.Marshal(s.Frame()); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine, handles touch commands
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			s.log.Info("Renderer disconnected (%d total)", n)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleMessage(data)
		}
	}()
}

func (s *FeedServer) handleMessage(data []byte) {
	var msg FeedCommand
	if err := json.Unmarshal(data, &msg); err != nil || msg.Command == "" {
		s.log.Debug("Ignoring renderer message: %s", data)
		return
	}
	if err := s.commander.Execute(msg.Command); err != nil {
		s.log.Warn("Renderer command %q rejected: %v", msg.Command, err)
	}
}

func (s *FeedServer) broadcast(frame FeedFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
