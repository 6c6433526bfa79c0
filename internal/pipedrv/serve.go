package pipedrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

// Serve is the child side of the pipe: it ferries framed packets between
// stdio and an already-connected driver until either side closes. Pure
// framed bytes in both directions; logs go to stderr only.
func Serve(ctx context.Context, drv driver.Driver, in io.Reader, out io.Writer) error {
	log := logging.L().With("component", "pipe_serve")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	errCh := make(chan error, 2)

	// parent → device
	go func() {
		err := protocol.StreamFrames(ctx, in, func(frame []byte) {
			p, perr := protocol.NewPacket(protocol.Body(frame))
			if perr != nil {
				return
			}
			if werr := drv.Write(ctx, p); werr != nil {
				log.Warn("pipe_device_write_failed", "error", werr)
			}
		})
		errCh <- err
	}()

	// device → parent
	go func() {
		for {
			o, err := drv.Read(ctx)
			if err != nil {
				errCh <- err
				return
			}
			if o == nil || o.Kind == driver.OutputDone {
				errCh <- nil
				return
			}
			if o.Kind != driver.OutputPacket {
				continue
			}
			writeMu.Lock()
			_, werr := out.Write(o.Packet.Packetize())
			writeMu.Unlock()
			if werr != nil {
				errCh <- fmt.Errorf("%w: stdout write: %v", driver.ErrTransport, werr)
				return
			}
		}
	}()

	err := <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
