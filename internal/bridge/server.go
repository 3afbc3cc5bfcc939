// Package bridge exposes the motion controller over a websocket: clients
// send mode requests and audio, and receive pose frames.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/normanking/avatarmotion/internal/bus"
	"github.com/normanking/avatarmotion/internal/driver"
	"github.com/rs/zerolog"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Controller is the set of entry points a client may drive.
type Controller interface {
	SetMode(m avatar3d.Mode) error
	StopDance()
	TriggerBlink()
}

// AudioSink accepts pcm16le chunks for one channel.
type AudioSink interface {
	PushBytes(ch avatar3d.Channel, pcm []byte) error
}

type Config struct {
	Addr         string
	Path         string
	PoseEvery    int
	WriteTimeout time.Duration
	QueueSize    int
}

func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8765",
		Path:         "/ws",
		PoseEvery:    1,
		WriteTimeout: 2 * time.Second,
		QueueSize:    64,
	}
}

// Inbound is a client request.
type Inbound struct {
	Type    string `json:"type"`
	Mode    string `json:"mode,omitempty"`
	Channel string `json:"channel,omitempty"`
	PCM     string `json:"pcm,omitempty"` // base64 pcm16le
}

type PoseMessage struct {
	Type     string               `json:"type"`
	Seq      uint64               `json:"seq"`
	Time     float64              `json:"t"`
	Mode     string               `json:"mode"`
	Levels   avatar3d.AudioLevels `json:"levels"`
	Channels avatar3d.PoseState   `json:"channels"`
}

type ModeMessage struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type HelloMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Server struct {
	cfg    Config
	ctrl   Controller
	audio  AudioSink
	events *bus.EventBus
	logger zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// New builds a bridge. audio and events may be nil.
func New(cfg Config, ctrl Controller, audio AudioSink, events *bus.EventBus, logger zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.PoseEvery <= 0 {
		cfg.PoseEvery = def.PoseEvery
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		audio:  audio,
		events: events,
		logger: logger.With().Str("component", "bridge").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // local tool, any page may drive it
		},
		clients: make(map[string]*client),
	}

	if events != nil {
		events.Subscribe(bus.EventTypeModeChanged, func(e bus.Event) {
			s.Broadcast(ModeMessage{Type: "mode_changed", From: e.String("from"), To: e.String("to")})
		})
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": s.ClientCount()}); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write health")
		}
	})
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.Close()
	}()

	s.logger.Info().Str("addr", s.cfg.Addr).Str("path", s.cfg.Path).Msg("Bridge listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// Sink forwards every PoseEvery-th frame to all clients.
func (s *Server) Sink() driver.Sink {
	return func(f driver.Frame) {
		if f.Seq%uint64(s.cfg.PoseEvery) != 0 || s.ClientCount() == 0 {
			return
		}
		s.Broadcast(PoseMessage{
			Type:     "pose",
			Seq:      f.Seq,
			Time:     f.Elapsed,
			Mode:     f.Mode.String(),
			Levels:   f.Levels,
			Channels: f.Pose,
		})
	}
}

// Broadcast queues v for every client. Slow clients drop messages rather
// than stall the frame loop.
func (s *Server) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.enqueue(c, data)
	}
}

func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
	}
}

func (s *Server) send(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.enqueue(c, data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.cfg.QueueSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Client connected")
	if s.events != nil {
		s.events.Publish(bus.ClientConnected(c.id, r.RemoteAddr))
	}

	s.send(c, HelloMessage{Type: "hello", ClientID: c.id})
	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()

	s.logger.Info().Str("client", c.id).Msg("Client disconnected")
	if s.events != nil {
		s.events.Publish(bus.ClientDisconnected(c.id))
	}
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(1 << 20)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Str("client", c.id).Msg("Read failed")
			}
			return
		}
		// Any frame that does not decode into Inbound gets an error reply;
		// only transport errors end the connection.
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(c, ErrorMessage{Type: "error", Error: "malformed json"})
			continue
		}
		if err := s.dispatch(msg); err != nil {
			s.send(c, ErrorMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (s *Server) dispatch(msg Inbound) error {
	switch msg.Type {
	case "mode":
		m, err := avatar3d.ParseMode(msg.Mode)
		if err != nil {
			return err
		}
		return s.ctrl.SetMode(m)
	case "stop_dance":
		s.ctrl.StopDance()
	case "blink":
		s.ctrl.TriggerBlink()
	case "audio":
		if s.audio == nil {
			return nil
		}
		ch, err := avatar3d.ParseChannel(msg.Channel)
		if err != nil {
			return err
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.PCM)
		if err != nil {
			return fmt.Errorf("decode pcm: %w", err)
		}
		return s.audio.PushBytes(ch, pcm)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return nil
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug().Err(err).Str("client", c.id).Msg("Write failed")
				c.close()
				return
			}
		}
	}
}
