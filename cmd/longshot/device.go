package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/FlorentCollin/longshot/internal/bt"
	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/pipedrv"
	"github.com/FlorentCollin/longshot/internal/protocol"
	"github.com/FlorentCollin/longshot/internal/session"
	"github.com/FlorentCollin/longshot/internal/sim"
)

// errMachineOff distinguishes the off-machine refusal; main maps it to exit
// code 1.
var errMachineOff = errors.New("machine is not on, pass --turn-on to turn it on before operation")

// resolveDriver connects the transport used by user-facing subcommands: the
// simulator for sim identifiers, otherwise the subprocess pipe so the BLE
// stack lives in its own process.
func resolveDriver(ctx context.Context, deviceID string) (driver.Driver, error) {
	if sim.Is(deviceID) {
		return sim.New(deviceID)
	}
	return pipedrv.Connect(ctx, deviceID)
}

// directDriver connects without the subprocess hop. Used by the pipe child
// itself.
func directDriver(ctx context.Context, deviceID string) (driver.Driver, error) {
	if sim.Is(deviceID) {
		return sim.New(deviceID)
	}
	return bt.Connect(ctx, deviceID)
}

// openSession resolves the device and runs the power-on gate. On return the
// machine is on (or the caller accepted it off).
func openSession(ctx context.Context, cfg *deviceConfig) (*session.Session, error) {
	drv, err := resolveDriver(ctx, cfg.deviceName)
	if err != nil {
		return nil, err
	}
	sess := session.New(ctx, drv, logging.L().With("device", cfg.deviceName))

	if cfg.dumpPackets {
		go dumpPackets(sess)
	}

	if err := powerOnGate(ctx, sess, cfg); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// powerOnGate refuses to operate an off machine unless the caller asked to
// turn it on or explicitly allowed it off.
func powerOnGate(ctx context.Context, sess *session.Session, cfg *deviceConfig) error {
	if cfg.allowOff {
		return nil
	}
	status, err := sess.CurrentState(ctx)
	if err != nil {
		return err
	}
	if status != session.StatusStandBy {
		return nil
	}
	if !cfg.turnOn {
		return errMachineOff
	}
	if err := sess.Write(ctx, protocol.TurnOnRequest{}); err != nil {
		return err
	}
	return sess.WaitForState(ctx, session.StatusReady)
}

// dumpPackets logs every driver output until the session dies.
func dumpPackets(sess *session.Session) {
	tap, cancel := sess.Tap()
	defer cancel()
	log := logging.L()
	for out := range tap {
		switch out.Kind {
		case driver.OutputPacket:
			log.Info("packet", "dir", "rx", "body", out.Packet.Hex())
		default:
			log.Info("packet", "event", out.Kind.String())
		}
	}
}

// printStatus writes one status line for interactive commands.
func printStatus(status session.Status) {
	fmt.Printf("status: %s\n", status)
}
