// Package mqttgw accepts brew orders from a TLS-authenticated MQTT broker
// and reports order progress derived from the device session.
package mqttgw

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
	"github.com/FlorentCollin/longshot/internal/protocol"
	"github.com/FlorentCollin/longshot/internal/session"
)

const (
	brokerPort = 8883
	keepAlive  = 10 * time.Second
	qos        = 1

	// readyStreakLimit caps how many consecutive ready observations after a
	// finished brew still count as "waiting for dispensing to show up".
	readyStreakLimit = 20
)

// DriverFactory resolves a device identifier to a connected driver. One
// driver (and one session) is created per accepted order.
type DriverFactory func(ctx context.Context, deviceID string) (driver.Driver, error)

// Config is the gateway configuration.
type Config struct {
	Endpoint string
	ClientID string
	TopicIn  string
	TopicOut string
	CAFile   string
	CertFile string
	KeyFile  string

	DeviceID string
}

// Gateway subscribes to the order topic and runs one brew task per order.
type Gateway struct {
	cfg     Config
	log     *slog.Logger
	resolve DriverFactory
}

// New creates a gateway. resolve must not be nil.
func New(cfg Config, resolve DriverFactory) *Gateway {
	return &Gateway{
		cfg:     cfg,
		log:     logging.L().With("component", "mqttgw"),
		resolve: resolve,
	}
}

// tlsConfig builds mutual-TLS credentials from the configured PEM files.
func (g *Gateway) tlsConfig() (*tls.Config, error) {
	ca, err := os.ReadFile(g.cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("ca file %s holds no certificates", g.cfg.CAFile)
	}
	cert, err := tls.LoadX509KeyPair(g.cfg.CertFile, g.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client keypair: %w", err)
	}
	return &tls.Config{RootCAs: pool, Certificates: []tls.Certificate{cert}}, nil
}

// Run connects to the broker and serves orders until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	tlsCfg, err := g.tlsConfig()
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("ssl://%s:%d", g.cfg.Endpoint, brokerPort)).
		SetClientID(g.cfg.ClientID).
		SetTLSConfig(tlsCfg).
		SetKeepAlive(keepAlive)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		metrics.IncError(metrics.ErrBus)
		return fmt.Errorf("broker connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	g.log.Info("broker_connected", "endpoint", g.cfg.Endpoint, "topic_in", g.cfg.TopicIn)

	handler := func(_ mqtt.Client, m mqtt.Message) {
		g.handleMessage(ctx, client, m)
	}
	if token := client.Subscribe(g.cfg.TopicIn, qos, handler); token.Wait() && token.Error() != nil {
		metrics.IncError(metrics.ErrBus)
		return fmt.Errorf("subscribe %s: %w", g.cfg.TopicIn, token.Error())
	}

	<-ctx.Done()
	return nil
}

func (g *Gateway) handleMessage(ctx context.Context, client mqtt.Client, m mqtt.Message) {
	if m.Duplicate() {
		g.log.Info("duplicate_delivery_skipped", "topic", m.Topic())
		return
	}
	order, err := ParseOrder(m.Payload())
	if err != nil {
		metrics.IncError(metrics.ErrBus)
		g.log.Warn("order_decode_failed", "error", err)
		return
	}
	metrics.IncOrderAccepted()
	g.log.Info("order_accepted",
		"order_id", order.OrderID,
		"user_id", order.UserID,
		"drink", order.DrinkOrder)
	go func() {
		if err := g.runOrder(ctx, client, order); err != nil {
			metrics.IncError(metrics.ErrBusOrder)
			g.log.Error("order_failed", "order_id", order.OrderID, "error", err)
		}
	}()
}

// runOrder owns one session for the lifetime of one order: it publishes a
// status update on every projected change and a terminal Completed once the
// session's stream ends, then awaits the brew task before tearing down.
func (g *Gateway) runOrder(ctx context.Context, client mqtt.Client, order BrewOrder) error {
	drv, err := g.resolve(ctx, g.cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", g.cfg.DeviceID, err)
	}
	sess := session.New(ctx, drv, g.log.With("order_id", order.OrderID))
	defer sess.Close()

	tap, cancelTap := sess.Tap()
	defer cancelTap()

	// Hold status interest for the whole order: the brew task's own waits
	// end once the brew request is written, and without an observer the poll
	// loop goes idle and the end-of-order condition below is never seen. No
	// report projects to StatusUnknown, so this wait lasts until we return.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() { _ = sess.WaitForState(watchCtx, session.StatusUnknown) }()

	topic := fmt.Sprintf("%s/%s", g.cfg.TopicOut, order.OrderID)
	publish := func(state string) {
		u := OrderUpdate{UserID: order.UserID, OrderID: order.OrderID, State: state}
		if token := client.Publish(topic, qos, false, u.encode()); token.Wait() && token.Error() != nil {
			g.log.Warn("status_publish_failed", "topic", topic, "error", token.Error())
		}
	}

	// Eager first notification so the caller sees the order in processing
	// before the machine reports anything.
	publish(stateAccepted)

	brewDone := make(chan error, 1)
	go func() { brewDone <- g.brew(ctx, sess, order) }()

	var brewErr error
	brewFinished := false
	last := session.StatusUnknown
	dispensed := false
	readyStreak := 0
	for out := range tap {
		if out.Kind == driver.OutputDone {
			break
		}
		select {
		case brewErr = <-brewDone:
			brewFinished = true
		default:
		}
		if brewFinished && brewErr != nil {
			break
		}
		status, err := sess.CurrentState(ctx)
		if err != nil {
			continue
		}
		if status != last {
			last = status
			publish(status.String())
		}
		// terminal condition: dispensing started after the brew request and
		// the machine settled back to ready
		if brewFinished {
			switch status {
			case session.StatusBusy:
				dispensed = true
				readyStreak = 0
			case session.StatusReady:
				readyStreak++
			}
			// a long ready streak means the progress ramp fell between two
			// polls; don't hold the order open forever
			if status == session.StatusReady && (dispensed || readyStreak >= readyStreakLimit) {
				break
			}
		}
	}
	publish(stateCompleted)
	metrics.IncOrderCompleted()

	if !brewFinished {
		brewErr = <-brewDone
	}
	return brewErr
}

// brew powers the machine on if needed and starts dispensing.
func (g *Gateway) brew(ctx context.Context, sess *session.Session, order BrewOrder) error {
	if d := order.DrinkDetails; d.Coffee != nil || d.Taste != nil || d.Milk != nil || d.HotWater != nil {
		g.log.Info("ingredient_overrides_ignored", "order_id", order.OrderID)
	}
	status, err := sess.CurrentState(ctx)
	if err != nil {
		return err
	}
	if status == session.StatusStandBy {
		if err := sess.Write(ctx, protocol.TurnOnRequest{}); err != nil {
			return err
		}
	}
	if err := sess.WaitForState(ctx, session.StatusReady); err != nil {
		return err
	}
	return sess.Write(ctx, protocol.BrewRequest{})
}
