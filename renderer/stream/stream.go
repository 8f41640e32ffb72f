// Package stream publishes swarm frames to websocket clients.
//
// A client receives one HELLO describing the unit buckets, then a FRAME every
// stream.every ticks with one [x, y, z, yaw, scale] instance per agent.
// Clients that fall behind miss frames; the simulation never waits on them.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/units"
)

// Version is the message protocol version.
const Version = "1.0"

// Message types.
const (
	TypeHello = "HELLO"
	TypeFrame = "FRAME"
)

// clientQueue is how many frames may wait per client before frames are dropped.
const clientQueue = 8

// HelloMsg is the first message sent to a client.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Every           int        `json:"every"`
	Units           []UnitInfo `json:"units"`
}

// UnitInfo describes one bucket.
type UnitInfo struct {
	Type     uint8  `json:"type"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Color    string `json:"color"`
}

// FrameMsg carries every instance transform after one tick.
type FrameMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Time            float64      `json:"time"` // simulated seconds
	Units           []FrameUnits `json:"units"`
}

// FrameUnits holds one bucket's instances in slot order.
type FrameUnits struct {
	Type      uint8        `json:"type"`
	Instances [][5]float64 `json:"instances"`
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// Server is a Renderer that broadcasts frames to websocket clients.
type Server struct {
	renderer.Buffers

	every      uint64
	maxClients int
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	hello   []byte

	frame   FrameMsg
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewServer creates a stream server.
func NewServer(cfg config.StreamConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	every := cfg.Every
	if every < 1 {
		every = 1
	}
	return &Server{
		every:      uint64(every),
		maxClients: cfg.MaxClients,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		frame: FrameMsg{
			Type:            TypeFrame,
			ProtocolVersion: Version,
		},
	}
}

// Allocate implements renderer.Renderer and prepares the HELLO message.
func (s *Server) Allocate(buckets []renderer.Bucket) error {
	if err := s.Buffers.Allocate(buckets); err != nil {
		return err
	}

	hello := HelloMsg{
		Type:            TypeHello,
		ProtocolVersion: Version,
		Every:           int(s.every),
		Units:           make([]UnitInfo, len(buckets)),
	}
	s.frame.Units = make([]FrameUnits, len(buckets))
	for i, b := range buckets {
		c := b.Model.Color
		hello.Units[i] = UnitInfo{
			Type:     uint8(b.Type),
			Name:     b.Name,
			Capacity: b.Capacity,
			Color:    colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex(),
		}
		s.frame.Units[i] = FrameUnits{
			Type:      uint8(b.Type),
			Instances: make([][5]float64, b.Capacity),
		}
	}
	data, err := json.Marshal(hello)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.hello = data
	s.mu.Unlock()
	return nil
}

// EndFrame implements renderer.FrameEnder. Every stream.every ticks the
// buffers are encoded once and queued to each client.
func (s *Server) EndFrame(tick uint64, simTime time.Duration) {
	if tick%s.every != 0 || s.Clients() == 0 {
		return
	}

	s.frame.Tick = tick
	s.frame.Time = simTime.Seconds()
	for i := range s.frame.Units {
		fu := &s.frame.Units[i]
		for j, tr := range s.Transforms(units.TypeID(fu.Type)) {
			fu.Instances[j] = [5]float64{tr.Position.X, tr.Position.Y, tr.Position.Z, tr.Yaw, tr.Scale}
		}
	}
	data, err := json.Marshal(&s.frame)
	if err != nil {
		s.logger.Error("encoding frame", "tick", tick, "error", err)
		return
	}
	s.broadcast(data)
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- data:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Sent returns how many frames were queued to clients.
func (s *Server) Sent() uint64 {
	return s.sent.Load()
}

// Dropped returns how many frames were skipped for slow clients.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

// register adds a client with the HELLO already queued. It returns false
// when the server is full.
func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxClients > 0 && len(s.clients) >= s.maxClients {
		return false
	}
	if s.hello != nil {
		c.out <- s.hello
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Handler upgrades requests to websocket streams.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			conn: conn,
			out:  make(chan []byte, clientQueue),
			done: make(chan struct{}),
		}
		if !s.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"), time.Now().Add(time.Second))
			return
		}
		defer s.unregister(c)
		s.logger.Info("stream client connected", "remote", r.RemoteAddr)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-c.done:
					writeErr <- nil
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Clients only send control frames; reading detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(c.done)
		s.logger.Info("stream client disconnected", "remote", r.RemoteAddr)

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}
