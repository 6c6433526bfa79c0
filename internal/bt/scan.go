// Package bt drives an ECAM machine over Bluetooth Low Energy.
package bt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
)

// The machine presents one vendor service with a single write/read/indicate
// characteristic.
const (
	serviceUUIDString        = "00035b03-58e6-07dd-021a-08123a000300"
	characteristicUUIDString = "00035b03-58e6-07dd-021a-08123a000301"
)

var (
	serviceUUID        = mustUUID(serviceUUIDString)
	characteristicUUID = mustUUID(characteristicUUIDString)
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

const (
	// scanInterval x scanAttempts bounds discovery at roughly five seconds.
	scanInterval = 500 * time.Millisecond
	scanAttempts = 10
)

var (
	adapterOnce sync.Once
	adapterErr  error
)

// adapter enables the default BLE adapter once per process. The BlueZ stack
// tolerates a single enable; this is also why the subprocess driver exists.
func adapter() (*bluetooth.Adapter, error) {
	adapterOnce.Do(func() {
		adapterErr = bluetooth.DefaultAdapter.Enable()
	})
	if adapterErr != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", driver.ErrTransport, adapterErr)
	}
	return bluetooth.DefaultAdapter, nil
}

// Scan discovers the first machine advertising the vendor service together
// with a local name. Scanning stops on the first match or after roughly
// five seconds with ErrNotFound.
func Scan(ctx context.Context) (driver.ScanResult, error) {
	r, err := scanMatch(ctx, func(r bluetooth.ScanResult) bool {
		return r.LocalName() != "" && r.HasServiceUUID(serviceUUID)
	})
	if err != nil {
		return driver.ScanResult{}, err
	}
	return driver.ScanResult{Name: r.LocalName(), ID: r.Address.String()}, nil
}

// scanMatch runs one bounded scan pass and returns the first result
// accepted by match.
func scanMatch(ctx context.Context, match func(bluetooth.ScanResult) bool) (bluetooth.ScanResult, error) {
	var zero bluetooth.ScanResult
	adp, err := adapter()
	if err != nil {
		metrics.IncError(metrics.ErrBTScan)
		return zero, err
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		err := adp.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !match(r) {
				return
			}
			select {
			case found <- r:
				_ = adp.StopScan()
			default:
			}
		})
		scanErr <- err
	}()

	deadline := time.NewTimer(scanAttempts * scanInterval)
	defer deadline.Stop()
	select {
	case r := <-found:
		logging.L().Debug("bt_scan_match", "name", r.LocalName(), "address", r.Address.String())
		return r, nil
	case err := <-scanErr:
		if err != nil {
			metrics.IncError(metrics.ErrBTScan)
			return zero, fmt.Errorf("%w: scan: %v", driver.ErrTransport, err)
		}
		return zero, driver.ErrNotFound
	case <-deadline.C:
		_ = adp.StopScan()
		return zero, driver.ErrNotFound
	case <-ctx.Done():
		_ = adp.StopScan()
		return zero, ctx.Err()
	}
}
