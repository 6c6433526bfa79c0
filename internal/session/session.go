// Package session multiplexes one device driver into a state mirror, a
// broadcast packet tap and a paced status-polling loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cskr/pubsub"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

const (
	// pollInterval is timing-coupled to the device firmware. Polling faster
	// causes command loss and the machine appears to lock up.
	pollInterval = 250 * time.Millisecond

	// idleInterval paces the poll loop while nobody observes state.
	idleInterval = 100 * time.Millisecond

	// writeTimeout bounds one monitor request transmission.
	writeTimeout = 250 * time.Millisecond

	// tapBuffer is the per-subscriber packet tap depth. Slow subscribers
	// drop beyond this; they never reorder.
	tapBuffer = 100
)

const topicOutputs = "outputs"

// watchCell is a single-writer, multi-reader slot holding the last decoded
// status report. Readers obtain the value plus a channel that closes on the
// next change.
type watchCell struct {
	mu     sync.Mutex
	val    *protocol.MonitorState
	change chan struct{}
}

func newWatchCell() *watchCell {
	return &watchCell{change: make(chan struct{})}
}

func (c *watchCell) set(v *protocol.MonitorState) {
	c.mu.Lock()
	c.val = v
	close(c.change)
	c.change = make(chan struct{})
	c.mu.Unlock()
}

func (c *watchCell) get() (*protocol.MonitorState, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.change
}

// Session wraps one driver for the lifetime of a device connection. Create
// with New; Close tears everything down. All methods are safe for
// concurrent use.
type Session struct {
	drv driver.Driver
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	last *watchCell

	tapMu     sync.RWMutex
	tap       *pubsub.PubSub
	tapClosed bool

	readyOnce sync.Once
	ready     chan struct{}

	watchers interest

	deadOnce sync.Once
	done     chan struct{}
}

// New wraps a driver and spawns the inbound pump. The session owns the
// driver from here on and closes it when the session dies.
func New(ctx context.Context, drv driver.Driver, log *slog.Logger) *Session {
	if log == nil {
		log = logging.L()
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		drv:    drv,
		log:    log,
		ctx:    sctx,
		cancel: cancel,
		last:   newWatchCell(),
		tap:    pubsub.New(tapBuffer),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	metrics.AddSession(1)
	go s.pump()
	return s
}

// Alive reports session liveness. Once false it never returns to true.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done closes when the session dies.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close clears the alive latch and releases the driver. Idempotent.
func (s *Session) Close() error {
	s.deaden()
	return s.drv.Close()
}

func (s *Session) deaden() {
	s.deadOnce.Do(func() {
		close(s.done)
		s.cancel()
		metrics.AddSession(-1)
	})
}

// pump is the single reader of the driver and the single producer of the
// packet tap and the status cell.
func (s *Session) pump() {
	defer s.shutdownTap()
	defer s.deaden()
	started := false
	for s.Alive() {
		out, err := s.drv.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Error("driver_read_error", "error", err)
			}
			return
		}
		if out == nil {
			done := driver.Done()
			out = &done
		}
		s.publish(*out)
		switch out.Kind {
		case driver.OutputReady:
			if started {
				s.log.Warn("duplicate_ready_ignored")
				continue
			}
			started = true
			go s.pollLoop()
		case driver.OutputDone:
			return
		case driver.OutputPacket:
			if out.Resp != nil && out.Resp.State != nil {
				s.last.set(out.Resp.State)
				s.readyOnce.Do(func() { close(s.ready) })
			}
		}
	}
}

// pollLoop transmits monitor requests while observers are registered. Booted
// by the pump when the driver reports ready; at most one per session.
func (s *Session) pollLoop() {
	defer s.deaden()
	req, err := protocol.EncodePacket(protocol.MonitorRequest{Version: protocol.MonitorV2})
	if err != nil {
		s.log.Error("monitor_request_encode", "error", err)
		return
	}
	for s.Alive() {
		if s.watchers.count() == 0 {
			if !s.sleep(idleInterval) {
				return
			}
			continue
		}
		wctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := s.drv.Write(wctx, req)
		cancel()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			metrics.IncError(metrics.ErrPoll)
			s.log.Warn("status_poll_failed", "error", err)
			continue
		}
		metrics.IncStatusPoll()
		if !s.sleep(pollInterval) {
			return
		}
	}
}

// sleep waits d or reports false when the session dies first.
func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) publish(out driver.Output) {
	s.tapMu.RLock()
	if !s.tapClosed {
		s.tap.TryPub(out, topicOutputs)
	}
	s.tapMu.RUnlock()
}

func (s *Session) shutdownTap() {
	s.tapMu.Lock()
	if !s.tapClosed {
		s.tapClosed = true
		s.tap.Shutdown()
	}
	s.tapMu.Unlock()
}

// Tap subscribes to the broadcast of every driver output. The channel
// closes when the session dies. The tap is lossy: a subscriber that does
// not drain promptly misses outputs but never sees them reordered. cancel
// releases the subscription early and is safe to call more than once.
func (s *Session) Tap() (outputs <-chan driver.Output, cancel func()) {
	s.tapMu.RLock()
	if s.tapClosed {
		s.tapMu.RUnlock()
		closed := make(chan driver.Output)
		close(closed)
		return closed, func() {}
	}
	sub := s.tap.Sub(topicOutputs)
	s.tapMu.RUnlock()

	typed := make(chan driver.Output, tapBuffer)
	go func() {
		defer close(typed)
		for m := range sub {
			out, ok := m.(driver.Output)
			if !ok {
				continue
			}
			select {
			case typed <- out:
			default:
				metrics.IncTapDropped()
			}
		}
	}()
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.tapMu.RLock()
			if !s.tapClosed {
				s.tap.Unsub(sub, topicOutputs)
			}
			s.tapMu.RUnlock()
		})
	}
	return typed, cancel
}

// CurrentState blocks until the first status report has been observed, then
// returns the projected status. If the session dies before any report, the
// error is ErrUnknown-kind.
func (s *Session) CurrentState(ctx context.Context) (Status, error) {
	release := s.watchers.acquire()
	defer release()
	select {
	case <-s.ready:
	default:
		select {
		case <-s.ready:
		case <-s.done:
			return StatusUnknown, fmt.Errorf("%w: session closed before first status", driver.ErrUnknown)
		case <-ctx.Done():
			return StatusUnknown, ctx.Err()
		}
	}
	st, _ := s.last.get()
	if st == nil {
		return StatusUnknown, fmt.Errorf("%w: no status report", driver.ErrUnknown)
	}
	return Project(*st), nil
}

// WaitForState blocks until the machine projects to want. There is no
// wall-clock timeout at this layer; bound via ctx. Session death surfaces
// as a transport error.
func (s *Session) WaitForState(ctx context.Context, want Status) error {
	release := s.watchers.acquire()
	defer release()
	for {
		st, change := s.last.get()
		if st != nil && want.Matches(*st) {
			return nil
		}
		select {
		case <-change:
		case <-s.done:
			return fmt.Errorf("%w: session died waiting for %s", driver.ErrTransport, want)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Write encodes a request and forwards it to the driver. The caller
// sequences any state transitions it depends on.
func (s *Session) Write(ctx context.Context, req protocol.Request) error {
	p, err := protocol.EncodePacket(req)
	if err != nil {
		return err
	}
	return s.WritePacket(ctx, p)
}

// WritePacket forwards an already encoded packet to the driver.
func (s *Session) WritePacket(ctx context.Context, p protocol.Packet) error {
	return s.drv.Write(ctx, p)
}
