package bt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"tinygo.org/x/bluetooth"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

// connectRetries bounds the connect backoff after a successful scan match.
const connectRetries = 5

// disconnectPoll is the cadence of the liveness watcher.
const disconnectPoll = 50 * time.Millisecond

// Driver is the BLE implementation of driver.Driver. One Driver owns one
// peripheral connection.
type Driver struct {
	log       *slog.Logger
	dev       bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	localName string

	writeMu sync.Mutex

	connected atomic.Bool

	out      chan driver.Output
	stopOnce sync.Once
	stopped  chan struct{}
}

// Connect scans for the peripheral identified by deviceID (advertised local
// name or address), connects, discovers the vendor characteristic and
// subscribes to notifications. The returned driver emits Ready once the
// subscription is live.
func Connect(ctx context.Context, deviceID string) (*Driver, error) {
	adp, err := adapter()
	if err != nil {
		return nil, err
	}

	match, err := scanMatch(ctx, func(r bluetooth.ScanResult) bool {
		return r.Address.String() == deviceID || r.LocalName() == deviceID
	})
	if err != nil {
		return nil, err
	}

	d := &Driver{
		log:       logging.L().With("component", "bt", "device", deviceID),
		localName: match.LocalName(),
		out:       make(chan driver.Output, 32),
		stopped:   make(chan struct{}),
	}

	// Adapter-level handler; this process holds at most one connection.
	adp.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		d.connected.Store(connected)
	})

	connect := func() error {
		dev, err := adp.Connect(match.Address, bluetooth.ConnectionParams{})
		if err != nil {
			d.log.Warn("bt_connect_retry", "error", err)
			return err
		}
		d.dev = dev
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	if err := backoff.Retry(connect, bo); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", driver.ErrTransport, deviceID, err)
	}
	d.connected.Store(true)

	if err := d.subscribe(); err != nil {
		_ = d.dev.Disconnect()
		return nil, err
	}

	go d.watchLiveness()
	d.out <- driver.Ready()
	return d, nil
}

// subscribe discovers the vendor service and wires notifications through
// the frame decoder.
func (d *Driver) subscribe() error {
	svcs, err := d.dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(svcs) == 0 {
		return fmt.Errorf("%w: discover services: %v", driver.ErrTransport, err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{characteristicUUID})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("%w: discover characteristic: %v", driver.ErrTransport, err)
	}
	d.char = chars[0]

	// BlueZ delivers notification callbacks sequentially, so the framer
	// needs no locking here.
	framer := &protocol.Framer{}
	err = d.char.EnableNotifications(func(buf []byte) {
		framer.Push(buf, func(frame []byte) {
			p, err := protocol.NewPacket(protocol.Body(frame))
			if err != nil {
				return
			}
			d.emit(driver.PacketOutput(p))
		})
	})
	if err != nil {
		return fmt.Errorf("%w: enable notifications: %v", driver.ErrTransport, err)
	}
	return nil
}

func (d *Driver) emit(out driver.Output) {
	select {
	case d.out <- out:
	case <-d.stopped:
	}
}

// watchLiveness polls the connected flag and tears the stream down once the
// peripheral disconnects. Stream end and the dropped flag are independent
// signals; downstream must not rely on their ordering.
func (d *Driver) watchLiveness() {
	t := time.NewTicker(disconnectPoll)
	defer t.Stop()
	for {
		select {
		case <-d.stopped:
			return
		case <-t.C:
			if !d.connected.Load() {
				d.log.Info("bt_peripheral_disconnected")
				d.stop()
				return
			}
		}
	}
}

func (d *Driver) stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

// Read blocks for the next device event; (nil, nil) once the notification
// stream is torn down.
func (d *Driver) Read(ctx context.Context) (*driver.Output, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-d.out:
		return &out, nil
	case <-d.stopped:
		// drain events raced with the teardown
		select {
		case out := <-d.out:
			return &out, nil
		default:
			return nil, nil
		}
	}
}

// Write frames and transmits one packet on the vendor characteristic.
// Serialized: the machine is a single peer.
func (d *Driver) Write(ctx context.Context, p protocol.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-d.stopped:
		return fmt.Errorf("%w: peripheral gone", driver.ErrTransport)
	default:
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	data := p.Packetize()
	if _, err := d.char.WriteWithoutResponse(data); err != nil {
		metrics.IncError(metrics.ErrBTWrite)
		return fmt.Errorf("%w: write: %v", driver.ErrTransport, err)
	}
	metrics.IncFramesTx()
	d.log.Debug("bt_tx", "frame", fmt.Sprintf("%x", data))
	return nil
}

// Alive reports whether the peripheral is still connected.
func (d *Driver) Alive(ctx context.Context) bool {
	return d.connected.Load()
}

// Close disconnects the peripheral and ends the stream. Idempotent.
func (d *Driver) Close() error {
	d.stop()
	return d.dev.Disconnect()
}

// LocalName returns the advertised name captured during discovery.
func (d *Driver) LocalName() string { return d.localName }

var _ driver.Driver = (*Driver)(nil)
