package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

const (
	// numAreas is the length of the Start rotation.
	numAreas = 4

	// initialArea makes the first Start select area 1.
	initialArea = numAreas

	// recvBufferSize bounds one inbound packet.
	recvBufferSize = 1024
)

// Session owns one PLC connection. Its protocol state is touched only by
// its own worker goroutine.
type Session struct {
	id   uuid.UUID
	conn net.Conn
	srv  *Server
	log  zerolog.Logger

	running atomic.Bool
	done    chan struct{}

	areaIndex int
	sortIndex int
	movement  bool
	queue     []string
	cursor    int
}

func newSession(conn net.Conn, srv *Server) *Session {
	id := uuid.New()
	sess := &Session{
		id:        id,
		conn:      conn,
		srv:       srv,
		done:      make(chan struct{}),
		areaIndex: initialArea,
		log: srv.log.With().
			Str("session", id.String()).
			Str("peer", conn.RemoteAddr().String()).
			Logger(),
	}
	sess.running.Store(true)
	return sess
}

// run is the receive loop. It returns when the peer disconnects, a socket
// error occurs, a send fails, or the session is stopped.
func (s *Session) run(ctx context.Context) {
	defer func() {
		s.conn.Close()
		s.srv.remove(s.id)
		close(s.done)
		s.log.Info().Msg("session closed")
	}()

	buf := make([]byte, recvBufferSize)
	for s.running.Load() && ctx.Err() == nil {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.srv.opts.ReadTimeout)); err != nil {
			s.log.Warn().Err(err).Msg("failed to set read deadline")
			return
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				continue
			case errors.Is(err, io.EOF):
				s.log.Info().Msg("PLC disconnected")
			case !s.running.Load():
				// Closed by stop.
			default:
				s.log.Warn().Err(err).Msg("receive failed")
			}
			return
		}

		cmd, err := decodeCommand(buf[:n])
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable packet")
			continue
		}
		s.handle(ctx, cmd)
	}
}

// stop asks the worker to exit and unblocks its pending read.
func (s *Session) stop() {
	s.running.Store(false)
	s.conn.Close()
}

// handle dispatches one command.
func (s *Session) handle(ctx context.Context, cmd string) {
	log := s.log.With().Str("command", cmd).Logger()

	switch {
	case strings.HasPrefix(cmd, "Start"):
		s.handleStart(ctx, log)
	case strings.HasPrefix(cmd, "Sort"):
		s.handleSort(ctx, log)
	case strings.HasPrefix(cmd, "Stop"):
		s.handleStop(log)
	case strings.HasPrefix(cmd, "OK"):
		s.handleOK(log)
	default:
		log.Warn().Msg("unknown command ignored")
	}
}

func (s *Session) handleStart(ctx context.Context, log zerolog.Logger) {
	s.areaIndex = s.areaIndex%numAreas + 1
	s.resetQueue()
	s.movement = false

	req := DetectionRequest{
		Command:   "Start",
		Area:      s.areaIndex,
		Mode:      ModeScan,
		SortIndex: s.sortIndex,
	}
	log = log.With().Str("area", string(req.AreaID())).Logger()

	records := s.detect(ctx, log, req)

	s.queue = s.encode(log, records)
	log.Info().Int("count", len(records)).Int("queued", len(s.queue)).Msg("scan complete")

	if len(s.queue) > 0 {
		s.sendNext(log)
	}
}

func (s *Session) handleSort(ctx context.Context, log zerolog.Logger) {
	s.resetQueue()

	mode := ModeMovement
	if s.movement {
		mode = ModeRedetect
	}
	req := DetectionRequest{
		Command:   "Sort",
		Area:      s.areaIndex,
		Mode:      mode,
		SortIndex: s.sortIndex,
	}
	area := req.AreaID()
	log = log.With().Str("area", string(area)).Stringer("mode", mode).Int("sort_index", s.sortIndex).Logger()

	records := s.detect(ctx, log, req)

	switch {
	case len(records) > 0:
		if s.send(log, OverMessage) {
			s.movement = false
		}
	case mode == ModeMovement:
		if s.send(log, ErrorMessage(area)) {
			s.movement = true
		}
	default:
		log.Info().Msg("no object on re-detection")
	}

	s.sortIndex++
}

func (s *Session) handleStop(log zerolog.Logger) {
	s.resetQueue()
	s.movement = false
	s.areaIndex = initialArea
	s.sortIndex = 0
	log.Info().Msg("session state reset")
}

func (s *Session) handleOK(log zerolog.Logger) {
	if s.cursor < len(s.queue) {
		s.sendNext(log)
		return
	}
	log.Debug().Msg("queue drained")
	s.resetQueue()
}

// detect calls the detector with the detect timeout. Errors and timeouts
// are logged and reported as an empty result.
func (s *Session) detect(ctx context.Context, log zerolog.Logger, req DetectionRequest) []detection.ObjectRecord {
	req.Session = s.id.String()

	ctx, cancel := context.WithTimeout(ctx, s.srv.opts.DetectTimeout)
	defer cancel()

	type result struct {
		records []detection.ObjectRecord
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		records, err := s.srv.detector.Detect(ctx, req)
		ch <- result{records, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Warn().Err(r.err).Msg("detection failed")
			return nil
		}
		return r.records
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("detection timed out")
		return nil
	}
}

// encode converts records to wire messages, skipping shapes without a code.
func (s *Session) encode(log zerolog.Logger, records []detection.ObjectRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		msg, ok := s.srv.opts.Codec.Encode(r)
		if !ok {
			log.Info().Str("record", r.String()).Msg("shape has no wire code, skipped")
			continue
		}
		out = append(out, msg)
	}
	return out
}

// sendNext sends the record at the cursor and advances it.
func (s *Session) sendNext(log zerolog.Logger) {
	if s.send(log, s.queue[s.cursor]) {
		s.cursor++
	}
}

// send writes msg. On failure the session stops and its queue is cleared.
func (s *Session) send(log zerolog.Logger, msg string) bool {
	if !s.running.Load() {
		return false
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.srv.opts.WriteTimeout)); err == nil {
		_, err = s.conn.Write([]byte(msg))
		if err == nil {
			log.Info().Str("message", msg).Msg("sent")
			return true
		}
		log.Warn().Err(err).Str("message", msg).Msg("send failed")
	} else {
		log.Warn().Err(err).Msg("failed to set write deadline")
	}

	s.running.Store(false)
	s.resetQueue()
	return false
}

func (s *Session) resetQueue() {
	s.queue = nil
	s.cursor = 0
}
