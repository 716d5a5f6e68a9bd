package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/shape-sorter/internal/detection"
)

var (
	redSquare = detection.ObjectRecord{
		Shape: detection.Square, Color: "red",
		RobotX: 12.34, RobotY: -5, Orientation: 45, Oriented: true,
	}
	greenCircle = detection.ObjectRecord{
		Shape: detection.Circle, Color: "green", RobotX: -100.5, RobotY: 20,
	}
	blueHexagon = detection.ObjectRecord{
		Shape: detection.Hexagon, Color: "blue", Orientation: 30, Oriented: true,
	}
	triangle = detection.ObjectRecord{
		Shape: detection.Triangle, Color: "red", Orientation: 90, Oriented: true,
	}
)

const (
	redSquareMsg   = "0xS,+012.34,-005.00,-793.79,R"
	greenCircleMsg = "0xC,-100.50,+020.00,+000.00,G"
	blueHexagonMsg = "0xH,+000.00,+000.00,-176.39,B"
)

// fakeDetector replays scripted results and records every request.
type fakeDetector struct {
	mu       sync.Mutex
	results  [][]detection.ObjectRecord
	errs     []error
	delay    time.Duration
	requests []DetectionRequest
}

func (f *fakeDetector) Detect(ctx context.Context, req DetectionRequest) ([]detection.ObjectRecord, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var records []detection.ObjectRecord
	if len(f.results) > 0 {
		records, f.results = f.results[0], f.results[1:]
	}
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, err
}

// script appends results for the next detection calls.
func (f *fakeDetector) script(results ...[]detection.ObjectRecord) {
	f.mu.Lock()
	f.results = append(f.results, results...)
	f.mu.Unlock()
}

func (f *fakeDetector) requestLog() []DetectionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DetectionRequest(nil), f.requests...)
}

func testOptions() Options {
	return Options{
		Address:         "127.0.0.1:0",
		ReadTimeout:     20 * time.Millisecond,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		DetectTimeout:   time.Second,
		Codec:           DefaultCodec(),
	}
}

// plc is the test's end of a session connection.
type plc struct {
	t    *testing.T
	conn net.Conn
}

func (p *plc) send(cmd string) {
	p.t.Helper()
	p.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := p.conn.Write(append([]byte{0x00, 0x00}, cmd...)); err != nil {
		p.t.Fatalf("send %q: %v", cmd, err)
	}
}

func (p *plc) sendRaw(b []byte) {
	p.t.Helper()
	p.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := p.conn.Write(b); err != nil {
		p.t.Fatalf("send raw: %v", err)
	}
}

func (p *plc) expect(want string) {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := p.conn.Read(buf)
	if err != nil {
		p.t.Fatalf("waiting for %q: %v", want, err)
	}
	if got := string(buf[:n]); got != want {
		p.t.Fatalf("got %q, want %q", got, want)
	}
}

func (p *plc) expectSilence() {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 256)
	n, err := p.conn.Read(buf)
	if err == nil {
		p.t.Fatalf("unexpected message %q", buf[:n])
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		p.t.Fatalf("expected timeout, got %v", err)
	}
}

// startSession runs a session over net.Pipe and returns the PLC end.
func startSession(t *testing.T, det Detector, opts Options) (*Session, *plc) {
	t.Helper()
	srv := New(opts, det, zerolog.Nop())
	serverConn, clientConn := net.Pipe()

	sess := newSession(serverConn, srv)
	ctx, cancel := context.WithCancel(context.Background())
	go sess.run(ctx)

	t.Cleanup(func() {
		cancel()
		clientConn.Close()
		select {
		case <-sess.done:
		case <-time.After(2 * time.Second):
			t.Error("session did not exit")
		}
	})
	return sess, &plc{t: t, conn: clientConn}
}

func TestSession_StartAndOK(t *testing.T) {
	det := &fakeDetector{}
	det.script([]detection.ObjectRecord{redSquare, greenCircle, blueHexagon})
	_, p := startSession(t, det, testOptions())

	p.send("Start")
	p.expect(redSquareMsg)
	p.send("OK")
	p.expect(greenCircleMsg)
	p.send("OK")
	p.expect(blueHexagonMsg)
	p.send("OK")
	p.expectSilence()

	reqs := det.requestLog()
	if len(reqs) != 1 {
		t.Fatalf("got %d detection requests, want 1", len(reqs))
	}
	if reqs[0].Area != 1 || reqs[0].Mode != ModeScan || reqs[0].Command != "Start" {
		t.Errorf("request = %+v, want area 1 scan", reqs[0])
	}
	if reqs[0].Session == "" {
		t.Error("request has no session ID")
	}
}

func TestSession_SkipsShapesWithoutCode(t *testing.T) {
	det := &fakeDetector{}
	det.script([]detection.ObjectRecord{triangle, greenCircle})
	_, p := startSession(t, det, testOptions())

	p.send("Start")
	p.expect(greenCircleMsg)
	p.send("OK")
	p.expectSilence()
}

func TestSession_StartRotatesAreas(t *testing.T) {
	det := &fakeDetector{}
	_, p := startSession(t, det, testOptions())

	// Start sends nothing when no object is found.
	for i := 0; i < 5; i++ {
		p.send("Start")
		p.expectSilence()
	}

	want := []int{1, 2, 3, 4, 1}
	reqs := det.requestLog()
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(want))
	}
	for i, w := range want {
		if reqs[i].Area != w {
			t.Errorf("request %d: area %d, want %d", i, reqs[i].Area, w)
		}
	}
}

func TestSession_SortRealignment(t *testing.T) {
	det := &fakeDetector{}
	_, p := startSession(t, det, testOptions())

	// Start twice lands on area B with nothing found.
	p.send("Start")
	p.expectSilence()
	p.send("Start")
	p.expectSilence()

	// Movement check finds nothing: error for area B, switch to re-detection.
	p.send("Sort")
	p.expect("0xError,PosB")

	// Re-detection with nothing found stays silent.
	p.send("Sort")
	p.expectSilence()

	// Re-detection finds the part.
	det.script([]detection.ObjectRecord{redSquare})
	p.send("Sort")
	p.expect(OverMessage)

	// Back in movement mode.
	p.send("Sort")
	p.expect("0xError,PosB")

	reqs := det.requestLog()
	wantModes := []Mode{ModeScan, ModeScan, ModeMovement, ModeRedetect, ModeRedetect, ModeMovement}
	if len(reqs) != len(wantModes) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(wantModes))
	}
	for i, m := range wantModes {
		if reqs[i].Mode != m {
			t.Errorf("request %d: mode %s, want %s", i, reqs[i].Mode, m)
		}
	}
	for i, r := range reqs[2:] {
		if r.SortIndex != i {
			t.Errorf("sort request %d: SortIndex %d, want %d", i, r.SortIndex, i)
		}
		if r.Area != 2 {
			t.Errorf("sort request %d: area %d, want 2", i, r.Area)
		}
	}
}

func TestSession_SortDoesNotSendQueue(t *testing.T) {
	det := &fakeDetector{}
	det.script(
		[]detection.ObjectRecord{redSquare, greenCircle},
		[]detection.ObjectRecord{blueHexagon},
	)
	_, p := startSession(t, det, testOptions())

	p.send("Start")
	p.expect(redSquareMsg)

	// Sort clears the pending queue; the following OK has nothing to send.
	p.send("Sort")
	p.expect(OverMessage)
	p.send("OK")
	p.expectSilence()
}

func TestSession_StopResets(t *testing.T) {
	det := &fakeDetector{}
	det.script(nil, nil, nil, []detection.ObjectRecord{redSquare, greenCircle})
	_, p := startSession(t, det, testOptions())

	p.send("Start")
	p.expectSilence()
	p.send("Start")
	p.expectSilence()
	p.send("Sort")
	p.expect("0xError,PosB")

	p.send("Stop")
	p.expectSilence()

	// Area rotation restarts at A and movement mode is restored.
	p.send("Start")
	p.expect(redSquareMsg)
	p.send("Stop")
	p.expectSilence()
	p.send("OK")
	p.expectSilence()

	reqs := det.requestLog()
	last := reqs[len(reqs)-1]
	if last.Area != 1 || last.SortIndex != 0 {
		t.Errorf("after Stop: area %d sort index %d, want 1 and 0", last.Area, last.SortIndex)
	}
}

func TestSession_UnknownCommandKeepsConnection(t *testing.T) {
	det := &fakeDetector{}
	det.script([]detection.ObjectRecord{greenCircle})
	_, p := startSession(t, det, testOptions())

	p.send("Hello")
	p.expectSilence()
	p.sendRaw([]byte{0x00, 0x00, 0xff, 0xfe})
	p.expectSilence()
	p.sendRaw([]byte{0x00, 0x00})
	p.expectSilence()

	p.send("Start")
	p.expect(greenCircleMsg)
}

func TestSession_DetectionFailureCountsAsEmpty(t *testing.T) {
	tests := []struct {
		name string
		det  *fakeDetector
	}{
		{"error", &fakeDetector{errs: []error{errors.New("camera offline")}}},
		{"timeout", &fakeDetector{delay: 5 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.DetectTimeout = 50 * time.Millisecond
			_, p := startSession(t, tt.det, opts)

			p.send("Sort")
			p.expect("0xError,PosD")
		})
	}
}

func TestSession_EndsOnEOF(t *testing.T) {
	det := &fakeDetector{}
	sess, p := startSession(t, det, testOptions())

	p.conn.Close()

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after peer closed")
	}
}

func TestSession_SendFailureEndsSession(t *testing.T) {
	det := &fakeDetector{}
	det.script([]detection.ObjectRecord{redSquare})
	opts := testOptions()
	opts.WriteTimeout = 50 * time.Millisecond
	sess, p := startSession(t, det, opts)

	// Send Start but never read the reply: the write times out.
	p.send("Start")

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after send failure")
	}
}
