package witimu

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
)

// bleSettleFrames is how many leading notification frames per device are
// discarded. The sensors stream garbage while their filters settle.
const bleSettleFrames = 5

// DefaultBLEScanWindow bounds the discovery scan.
const DefaultBLEScanWindow = 15 * time.Second

// BLEConfig selects which WT901 devices the manager acquires.
type BLEConfig struct {
	// NamePrefix matches advertised device names. Ignored when MACs is set.
	NamePrefix string
	// MACs lists explicit device addresses. Their order fixes the sample
	// address assignment.
	MACs []string
	// Count is how many devices to look for.
	Count int
	// ScanWindow bounds discovery.
	ScanWindow time.Duration
}

// BLEManager connects to WT901 sensors over Bluetooth LE and feeds decoded
// samples to a callback. Devices are tagged with synthetic bus addresses
// (0x50 + connect order) so the tracker treats BLE and RS485 sensors the
// same way.
type BLEManager struct {
	cfg      BLEConfig
	onSample func(Sample)
}

// NewBLEManager creates a manager for the given device selection. onSample
// is called from the notification goroutine for each decoded frame.
func NewBLEManager(cfg BLEConfig, onSample func(Sample)) *BLEManager {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "WT901"
	}
	if cfg.Count <= 0 {
		cfg.Count = 2
	}
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = DefaultBLEScanWindow
	}
	return &BLEManager{cfg: cfg, onSample: onSample}
}

// Run scans, connects, and subscribes to notifications, then blocks until
// ctx is cancelled. Devices are disconnected on return.
func (m *BLEManager) Run(ctx context.Context) error {
	serviceUUID, err := bluetooth.ParseUUID(BLEServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service UUID: %w", err)
	}
	notifyUUID, err := bluetooth.ParseUUID(BLENotifyUUID)
	if err != nil {
		return fmt.Errorf("parse notify UUID: %w", err)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	results, err := m.scan(ctx, adapter)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no devices matching %q found in %v", m.cfg.NamePrefix, m.cfg.ScanWindow)
	}
	if len(results) < m.cfg.Count {
		monitoring.Logf("ble: found %d of %d devices, continuing with what answered", len(results), m.cfg.Count)
	}

	var connected []bluetooth.Device
	defer func() {
		for _, device := range connected {
			device.Disconnect()
		}
	}()

	for i, result := range results {
		device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err != nil {
			return fmt.Errorf("connect %s: %w", result.Address.String(), err)
		}
		connected = append(connected, device)

		services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
		if err != nil || len(services) == 0 {
			return fmt.Errorf("discover service on %s: %w", result.Address.String(), err)
		}
		chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{notifyUUID})
		if err != nil || len(chars) == 0 {
			return fmt.Errorf("discover notify characteristic on %s: %w", result.Address.String(), err)
		}

		addr := byte(0x50 + i)
		var settle int32
		err = chars[0].EnableNotifications(func(buf []byte) {
			if atomic.AddInt32(&settle, 1) <= bleSettleFrames {
				return
			}
			sample, err := DecodeBLEFrame(addr, buf, time.Now())
			if err != nil {
				monitoring.Debugf("ble 0x%02X: %v", addr, err)
				return
			}
			if m.onSample != nil {
				m.onSample(sample)
			}
		})
		if err != nil {
			return fmt.Errorf("enable notifications on %s: %w", result.Address.String(), err)
		}
		monitoring.Logf("ble: %s (%s) streaming as imu 0x%02X", result.LocalName(), result.Address.String(), addr)
	}

	<-ctx.Done()
	return ctx.Err()
}

// scan collects matching devices until Count are found, the scan window
// passes, or ctx is cancelled.
func (m *BLEManager) scan(ctx context.Context, adapter *bluetooth.Adapter) ([]bluetooth.ScanResult, error) {
	var (
		mu    sync.Mutex
		found []bluetooth.ScanResult
		seen  = make(map[string]bool)
		once  sync.Once
		done  = make(chan struct{})
	)

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.ScanWindow):
		case <-done:
		}
		adapter.StopScan()
	}()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !m.matches(result) {
			return
		}
		mu.Lock()
		key := strings.ToUpper(result.Address.String())
		if seen[key] {
			mu.Unlock()
			return
		}
		seen[key] = true
		found = append(found, result)
		enough := len(found) >= m.cfg.Count
		mu.Unlock()

		monitoring.Logf("ble: found %s (%s)", result.LocalName(), result.Address.String())
		if enough {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if len(m.cfg.MACs) > 0 {
		return orderByMAC(found, m.cfg.MACs), nil
	}
	return found, nil
}

func (m *BLEManager) matches(result bluetooth.ScanResult) bool {
	if len(m.cfg.MACs) > 0 {
		for _, mac := range m.cfg.MACs {
			if strings.EqualFold(result.Address.String(), mac) {
				return true
			}
		}
		return false
	}
	return strings.HasPrefix(result.LocalName(), m.cfg.NamePrefix)
}

// orderByMAC reorders scan results to match the configured address list, so
// the first configured MAC always becomes imu 0x50.
func orderByMAC(results []bluetooth.ScanResult, macs []string) []bluetooth.ScanResult {
	ordered := make([]bluetooth.ScanResult, 0, len(results))
	for _, mac := range macs {
		for _, result := range results {
			if strings.EqualFold(result.Address.String(), mac) {
				ordered = append(ordered, result)
				break
			}
		}
	}
	return ordered
}

// DeviceInfo describes one discovered WT901 advertiser.
type DeviceInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int16  `json:"rssi"`
}

// ScanDevices lists matching advertisers without connecting. The scan runs
// until Count devices answer or the scan window passes.
func ScanDevices(ctx context.Context, cfg BLEConfig) ([]DeviceInfo, error) {
	m := NewBLEManager(cfg, nil)
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	results, err := m.scan(ctx, adapter)
	if err != nil {
		return nil, err
	}
	devices := make([]DeviceInfo, len(results))
	for i, result := range results {
		devices[i] = DeviceInfo{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    result.RSSI,
		}
	}
	return devices, nil
}
