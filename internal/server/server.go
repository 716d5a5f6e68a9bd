package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// acceptBackoff is the pause after a transient Accept error.
const acceptBackoff = 100 * time.Millisecond

// Options configure the listener and its sessions.
type Options struct {
	Address         string
	ReadTimeout     time.Duration // bounded receive wait
	WriteTimeout    time.Duration // bounded send
	ShutdownTimeout time.Duration // per-session join on Stop
	DetectTimeout   time.Duration // per detection request
	Codec           Codec
}

// Server accepts PLC connections and runs one Session per connection.
type Server struct {
	opts     Options
	detector Detector
	log      zerolog.Logger

	mu         sync.Mutex
	ln         net.Listener
	sessions   map[uuid.UUID]*Session
	stopping   bool
	ctx        context.Context
	cancel     context.CancelFunc
	acceptDone chan struct{}
}

// New creates a server. Call Start to begin listening.
func New(opts Options, detector Detector, log zerolog.Logger) *Server {
	return &Server{
		opts:     opts,
		detector: detector,
		log:      log.With().Str("component", "server").Logger(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Start binds the listener and runs the accept loop in the background.
// Sessions inherit ctx; cancelling it ends them like Stop does, but only
// Stop closes the listener.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.acceptDone = make(chan struct{})
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening for PLC connections")
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Debug().Msg("accept loop stopped")
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			time.Sleep(acceptBackoff)
			continue
		}
		s.serve(conn)
	}
}

// serve registers a session for conn and starts its worker.
func (s *Server) serve(conn net.Conn) {
	sess := newSession(conn, s)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess.id] = sess
	ctx := s.ctx
	s.mu.Unlock()

	sess.log.Info().Msg("PLC connected")
	go sess.run(ctx)
}

// remove drops a session from the registry.
func (s *Server) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Stop closes every session socket, waits for the workers up to one shared
// shutdown timeout, then closes the listener. It is safe to call more than
// once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopping || s.ln == nil {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.log.Info().Int("sessions", len(sessions)).Msg("stopping server")
	s.cancel()

	for _, sess := range sessions {
		sess.stop()
	}
	deadline := time.NewTimer(s.opts.ShutdownTimeout)
	defer deadline.Stop()
	expired := false
	for _, sess := range sessions {
		if expired {
			select {
			case <-sess.done:
			default:
				sess.log.Warn().Msg("session did not exit in time")
			}
			continue
		}
		select {
		case <-sess.done:
		case <-deadline.C:
			expired = true
			sess.log.Warn().Dur("timeout", s.opts.ShutdownTimeout).Msg("session did not exit in time")
		}
	}

	if err := s.ln.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close listener")
	}
	<-s.acceptDone

	s.mu.Lock()
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	s.log.Info().Msg("server stopped")
}
