// Package camera is the boundary to the camera collaborator.
//
// The vendor SDK delivers frames on its own thread; a driver hands each one
// to a Latch, which keeps only the latest frame. Detection asks a
// FrameSource for a frame and waits a bounded time for a fresh one.
// DirSource replays image files instead, for bench runs without a camera.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// ErrNoFrame is returned when no frame arrives within the wait budget.
var ErrNoFrame = errors.New("camera: no frame")

// FrameSource supplies frames for detection.
type FrameSource interface {
	LatestFrame(ctx context.Context) (image.Image, error)
}

// Latch holds the most recent frame published by a camera driver.
type Latch struct {
	wait time.Duration

	mu    sync.Mutex
	frame image.Image
	fresh chan struct{} // closed and replaced on every Publish
}

// NewLatch creates a latch whose LatestFrame waits at most wait for a frame
// published after the call.
func NewLatch(wait time.Duration) *Latch {
	return &Latch{
		wait:  wait,
		fresh: make(chan struct{}),
	}
}

// Publish stores img as the latest frame and wakes all waiters. It never
// blocks on readers and is safe to call from a driver callback.
func (l *Latch) Publish(img image.Image) {
	l.mu.Lock()
	l.frame = img
	close(l.fresh)
	l.fresh = make(chan struct{})
	l.mu.Unlock()
}

// LatestFrame waits for the next published frame. It returns ErrNoFrame
// when none arrives within the latch wait, or ctx.Err() when ctx ends first.
func (l *Latch) LatestFrame(ctx context.Context) (image.Image, error) {
	l.mu.Lock()
	fresh := l.fresh
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case <-fresh:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.frame, nil
	case <-timer.C:
		return nil, ErrNoFrame
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pump republishes frames from src into l every interval until ctx ends.
// It stands in for a streaming driver when frames come from disk. Errors
// from src skip that tick.
func Pump(ctx context.Context, src FrameSource, l *Latch, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if img, err := src.LatestFrame(ctx); err == nil {
				l.Publish(img)
			}
		}
	}
}
