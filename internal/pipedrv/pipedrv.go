// Package pipedrv runs the device connection in a child process and speaks
// framed packets over its stdio. BLE stacks tolerate one connection per
// process; the pipe isolates that state, and a child crash surfaces as a
// clean end-of-stream.
package pipedrv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

// PipeCommand is the hidden subcommand the parent re-execs.
const PipeCommand = "x-internal-pipe"

// killGrace is how long Close waits for the child after stdin closes.
const killGrace = 2 * time.Second

// Driver is the parent half of the subprocess transport.
type Driver struct {
	log   *slog.Logger
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	out      chan driver.Output
	stopOnce sync.Once
	stopped  chan struct{}
}

// Connect re-executes the current binary with the pipe subcommand for the
// given device. The child's stdout carries framed inbound packets; its
// stdin framed outbound packets; stderr passes through for logs.
func Connect(ctx context.Context, deviceID string) (*Driver, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve executable: %v", driver.ErrTransport, err)
	}
	cmd := exec.CommandContext(ctx, exe, PipeCommand, "--device-name", deviceID)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", driver.ErrTransport, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", driver.ErrTransport, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start child: %v", driver.ErrTransport, err)
	}

	d := &Driver{
		log:     logging.L().With("component", "pipe", "device", deviceID, "pid", cmd.Process.Pid),
		cmd:     cmd,
		stdin:   stdin,
		out:     make(chan driver.Output, 32),
		stopped: make(chan struct{}),
	}
	go d.reader(ctx, stdout)
	d.out <- driver.Ready()
	return d, nil
}

// reader decodes the child's stdout until it closes, which is how both a
// device disconnect and a child crash present.
func (d *Driver) reader(ctx context.Context, stdout io.Reader) {
	err := protocol.StreamFrames(ctx, stdout, func(frame []byte) {
		p, err := protocol.NewPacket(protocol.Body(frame))
		if err != nil {
			return
		}
		select {
		case d.out <- driver.PacketOutput(p):
		case <-d.stopped:
		}
	})
	if err != nil && ctx.Err() == nil {
		metrics.IncError(metrics.ErrPipeRead)
		d.log.Warn("pipe_read_error", "error", err)
	}
	d.stop()
	if werr := d.cmd.Wait(); werr != nil && ctx.Err() == nil {
		d.log.Info("pipe_child_exit", "error", werr)
	}
}

func (d *Driver) stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

// Read blocks for the next child event; (nil, nil) once the child is gone.
func (d *Driver) Read(ctx context.Context) (*driver.Output, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-d.out:
		return &out, nil
	case <-d.stopped:
		select {
		case out := <-d.out:
			return &out, nil
		default:
			return nil, nil
		}
	}
}

// Write frames one packet into the child's stdin.
func (d *Driver) Write(ctx context.Context, p protocol.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-d.stopped:
		return fmt.Errorf("%w: child gone", driver.ErrTransport)
	default:
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.stdin.Write(p.Packetize()); err != nil {
		metrics.IncError(metrics.ErrPipeWrite)
		return fmt.Errorf("%w: pipe write: %v", driver.ErrTransport, err)
	}
	metrics.IncFramesTx()
	return nil
}

// Alive reports whether the child is still attached.
func (d *Driver) Alive(ctx context.Context) bool {
	select {
	case <-d.stopped:
		return false
	default:
		return true
	}
}

// Close ends the child: stdin close first so it can exit cleanly, kill
// after a short grace. Idempotent.
func (d *Driver) Close() error {
	_ = d.stdin.Close()
	select {
	case <-d.stopped: // reader saw stream end and reaped the child
	case <-time.After(killGrace):
		_ = d.cmd.Process.Kill()
	}
	d.stop()
	return nil
}

var _ driver.Driver = (*Driver)(nil)
