// Package controller is a simulated rover controller. It speaks the same
// websocket protocol as the robot, applies commands to a robot.Driver and
// broadcasts status, sensor and detection snapshots.
package controller

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/robot"
	"github.com/gwillem/roverpanel/pkg/store"
)

// MsgUnlock is sent with auth_state when a locked session issues a command.
const MsgUnlock = "Please unlock to control the robot."

// DefaultClasses are the detection classes before any update.
var DefaultClasses = []string{"person", "car", "dog", "cat", "bottle"}

const (
	defaultConfidence = 0.35
	sendQueueSize     = 64
	writeWait         = 5 * time.Second
	pongWait          = 60 * time.Second
	pingInterval      = 25 * time.Second
	readLimit         = 1 << 16
)

// Config configures a Server.
type Config struct {
	Password string

	DetectionAvailable bool
	Model              string

	StatusInterval    time.Duration
	SensorsInterval   time.Duration
	DetectionInterval time.Duration

	Logger zerolog.Logger
	Driver robot.Driver
	Store  *store.Store // optional
}

func (c *Config) setDefaults() {
	if c.StatusInterval <= 0 {
		c.StatusInterval = 250 * time.Millisecond
	}
	if c.SensorsInterval <= 0 {
		c.SensorsInterval = 300 * time.Millisecond
	}
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = time.Second
	}
	if c.Model == "" {
		c.Model = store.DefaultModel
	}
	if c.Driver == nil {
		c.Driver = robot.NewMockDriver(c.Logger)
	}
}

// Server holds the simulated robot state and the connected sessions.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	upgrader ws.Upgrader
	metrics  *metrics

	mu        sync.Mutex
	state     robotState
	detection detectionState
	sessions  map[string]*session
}

// New creates a Server. Call Run to start the broadcast loops.
func New(cfg Config) (*Server, error) {
	cfg.setDefaults()
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		metrics:  m,
		state:    newRobotState(),
		detection: detectionState{
			Confidence: defaultConfidence,
			Classes:    append([]string(nil), DefaultClasses...),
		},
		sessions: make(map[string]*session),
	}, nil
}

// IsWorldModel reports whether a model accepts custom classes.
func IsWorldModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "world")
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// session is one connected panel.
type session struct {
	id     string
	ip     string
	send   chan []byte
	authed bool // guarded by Server.mu
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(readLimit)

	sess := &session{
		id:   uuid.NewString(),
		ip:   clientIP(r),
		send: make(chan []byte, sendQueueSize),
	}
	ctx := r.Context()
	log := s.log.With().Str("session", sess.id).Str("ip", sess.ip).Logger()
	log.Info().Msg("Panel connected")

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.logAccess(ctx, sess, store.EventConnect, "")

	s.sendTo(sess, protocol.EventStatus, s.status())
	s.sendTo(sess, protocol.EventDetectionState, s.detectionSnapshot())
	s.sendTo(sess, protocol.EventAuthState, protocol.AuthState{Authenticated: false})

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(conn, sess)
	}()

	s.readLoop(ctx, conn, sess, log)

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	close(sess.send)
	<-writeDone
	_ = conn.Close()

	s.logAccess(context.WithoutCancel(ctx), sess, store.EventDisconnect, "")
	log.Info().Msg("Panel disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *ws.Conn, sess *session, log zerolog.Logger) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		in, err := protocol.Unmarshal(msg)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		s.handle(ctx, sess, in)
	}
}

// writeLoop is the only writer on conn. It ends when sess.send is closed.
func (s *Server) writeLoop(conn *ws.Conn, sess *session) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-sess.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.log.Debug().Err(err).Str("session", sess.id).Msg("WebSocket write error")
				_ = conn.Close()
				// keep draining until the reader notices
				for range sess.send {
				}
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				_ = conn.Close()
				for range sess.send {
				}
				return
			}
		}
	}
}

// sendTo queues a message for one session. Slow sessions lose messages.
func (s *Server) sendTo(sess *session, event string, payload any) {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("Cannot encode message")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.id]; !ok {
		return
	}
	select {
	case sess.send <- data:
	default:
		// Drop if channel full
	}
}

// broadcast queues a message for every session.
func (s *Server) broadcast(event string, payload any) {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("Cannot encode message")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		select {
		case sess.send <- data:
		default:
		}
	}
}

func (s *Server) logAccess(ctx context.Context, sess *session, event, details string) {
	if s.cfg.Store == nil {
		return
	}
	err := s.cfg.Store.LogAccess(ctx, store.AccessLog{
		Event:     event,
		ClientIP:  sess.ip,
		SessionID: sess.id,
		Details:   details,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("Cannot write access log")
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func passwordMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
