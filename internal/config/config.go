// Package config loads and persists the rig configuration file. All fields
// are pointers so a partial file only overrides what it names; the Get*
// accessors supply the documented defaults for everything else. Command-line
// flags override loaded values via the Set* helpers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armlink-data/teleop.rig/internal/pose"
)

// DefaultConfigPath is where the daemon looks for its configuration when no
// -config flag is given.
const DefaultConfigPath = "teleop.json"

// maxFileSize bounds config reads. A rig config is a few hundred bytes.
const maxFileSize = 1 * 1024 * 1024

// Config is the rig configuration. Fields omitted from the JSON file retain
// their defaults, so partial configs are safe.
type Config struct {
	// Serial bus.
	SerialPort *string `json:"serial_port,omitempty"` // default /dev/ttyUSB0
	BaudRate   *int    `json:"baud_rate,omitempty"`   // default 9600
	// IMUAddresses lists sensor bus addresses in link order: link 1,
	// link 2, gripper. Default [0x50, 0x51, 0x52].
	IMUAddresses []int   `json:"imu_addresses,omitempty"`
	PollInterval *string `json:"poll_interval,omitempty"` // duration string, default "20ms"

	// Arm geometry and normalization.
	L1        *float64 `json:"l1,omitempty"`        // link 1 length in meters, default 0.25
	L2        *float64 `json:"l2,omitempty"`        // link 2 length in meters, default 0.27
	YawMode   *string  `json:"yaw_mode,omitempty"`  // NORMAL, AUTO, SIMPLE, or OFF; default NORMAL
	Workspace *string  `json:"workspace,omitempty"` // "triple" or "dual", default "triple"

	// Publishing.
	FrameBind       *string  `json:"frame_bind,omitempty"`       // default tcp://*:5555
	PushEndpoint    *string  `json:"push_endpoint,omitempty"`    // default tcp://127.0.0.1:5559
	PushMode        *bool    `json:"push_mode,omitempty"`        // default false (PUB on FrameBind)
	DebugBind       *string  `json:"debug_bind,omitempty"`       // default tcp://*:5560
	PublishInterval *string  `json:"publish_interval,omitempty"` // default "200ms" (5 Hz)
	DebugInterval   *string  `json:"debug_interval,omitempty"`   // default "50ms" (20 Hz)
	OnlineOnly      *bool    `json:"online_only,omitempty"`      // default false
	GripperStep     *float64 `json:"gripper_step,omitempty"`     // default 0.01 per keypress

	// Admin HTTP endpoint on the daemon.
	AdminListen *string `json:"admin_listen,omitempty"` // default :8080

	// Bluetooth acquisition (dual-sensor rig).
	BLENamePrefix *string  `json:"ble_name_prefix,omitempty"` // default "WT901"
	BLEAddresses  []string `json:"ble_addresses,omitempty"`   // explicit MACs, in link order
	BLECount      *int     `json:"ble_count,omitempty"`       // default 2
}

// Default returns an empty Config; every accessor falls through to its
// documented default.
func Default() *Config {
	return &Config{}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns defaults when it does
// not, so a fresh checkout runs without writing a file first.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(filepath.Clean(path)); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration to path as indented JSON.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks that every set field holds a usable value.
func (c *Config) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	for _, addr := range c.IMUAddresses {
		if addr < 0x01 || addr > 0x7F {
			return fmt.Errorf("imu address 0x%02X out of range 0x01..0x7F", addr)
		}
	}

	for name, v := range map[string]*string{
		"poll_interval":    c.PollInterval,
		"publish_interval": c.PublishInterval,
		"debug_interval":   c.DebugInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", name, *v)
		}
	}

	if c.L1 != nil && *c.L1 <= 0 {
		return fmt.Errorf("l1 must be positive, got %f", *c.L1)
	}
	if c.L2 != nil && *c.L2 <= 0 {
		return fmt.Errorf("l2 must be positive, got %f", *c.L2)
	}

	if c.YawMode != nil {
		if _, err := pose.ParseYawMode(*c.YawMode); err != nil {
			return err
		}
	}

	if c.Workspace != nil {
		switch *c.Workspace {
		case "triple", "dual":
		default:
			return fmt.Errorf("unknown workspace %q: want triple or dual", *c.Workspace)
		}
	}

	if c.GripperStep != nil && (*c.GripperStep <= 0 || *c.GripperStep > 1) {
		return fmt.Errorf("gripper_step must be in (0, 1], got %f", *c.GripperStep)
	}

	if c.BLECount != nil && *c.BLECount <= 0 {
		return fmt.Errorf("ble_count must be positive, got %d", *c.BLECount)
	}

	return nil
}

// GetSerialPort returns the serial port path or the default.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 9600
	}
	return *c.BaudRate
}

// GetIMUAddresses returns the sensor bus addresses in link order.
func (c *Config) GetIMUAddresses() []byte {
	if len(c.IMUAddresses) == 0 {
		return []byte{0x50, 0x51, 0x52}
	}
	addrs := make([]byte, len(c.IMUAddresses))
	for i, a := range c.IMUAddresses {
		addrs[i] = byte(a)
	}
	return addrs
}

// GetPollInterval returns the bus poll interval or the default.
func (c *Config) GetPollInterval() time.Duration {
	return c.duration(c.PollInterval, 20*time.Millisecond)
}

// GetL1 returns the link 1 length in meters or the default.
func (c *Config) GetL1() float64 {
	if c.L1 == nil {
		return pose.DefaultL1
	}
	return *c.L1
}

// GetL2 returns the link 2 length in meters or the default.
func (c *Config) GetL2() float64 {
	if c.L2 == nil {
		return pose.DefaultL2
	}
	return *c.L2
}

// GetYawMode returns the parsed yaw normalization mode or the default.
func (c *Config) GetYawMode() pose.YawMode {
	if c.YawMode == nil {
		return pose.YawModeNormal
	}
	mode, err := pose.ParseYawMode(*c.YawMode)
	if err != nil {
		return pose.YawModeNormal
	}
	return mode
}

// GetWorkspace returns the named workspace mapping or the triple default.
func (c *Config) GetWorkspace() pose.Workspace {
	if c.Workspace != nil && *c.Workspace == "dual" {
		return pose.DefaultDualWorkspace()
	}
	return pose.DefaultTripleWorkspace()
}

// GetFrameBind returns the teleop frame PUB endpoint or the default.
func (c *Config) GetFrameBind() string {
	if c.FrameBind == nil {
		return "tcp://*:5555"
	}
	return *c.FrameBind
}

// GetPushEndpoint returns the PUSH endpoint used in push mode or the default.
func (c *Config) GetPushEndpoint() string {
	if c.PushEndpoint == nil {
		return "tcp://127.0.0.1:5559"
	}
	return *c.PushEndpoint
}

// GetPushMode reports whether frames go out on a PUSH socket instead of PUB.
func (c *Config) GetPushMode() bool {
	if c.PushMode == nil {
		return false
	}
	return *c.PushMode
}

// GetDebugBind returns the debug feed PUB endpoint or the default.
func (c *Config) GetDebugBind() string {
	if c.DebugBind == nil {
		return "tcp://*:5560"
	}
	return *c.DebugBind
}

// GetPublishInterval returns the teleop frame interval or the default.
func (c *Config) GetPublishInterval() time.Duration {
	return c.duration(c.PublishInterval, 200*time.Millisecond)
}

// GetDebugInterval returns the debug feed interval or the default.
func (c *Config) GetDebugInterval() time.Duration {
	return c.duration(c.DebugInterval, 50*time.Millisecond)
}

// GetOnlineOnly reports whether publishing pauses while any sensor is offline.
func (c *Config) GetOnlineOnly() bool {
	if c.OnlineOnly == nil {
		return false
	}
	return *c.OnlineOnly
}

// GetGripperStep returns the gripper step per keypress or the default.
func (c *Config) GetGripperStep() float64 {
	if c.GripperStep == nil {
		return 0.01
	}
	return *c.GripperStep
}

// GetAdminListen returns the daemon admin HTTP address or the default.
func (c *Config) GetAdminListen() string {
	if c.AdminListen == nil {
		return ":8080"
	}
	return *c.AdminListen
}

// GetBLENamePrefix returns the BLE device name prefix or the default.
func (c *Config) GetBLENamePrefix() string {
	if c.BLENamePrefix == nil {
		return "WT901"
	}
	return *c.BLENamePrefix
}

// GetBLECount returns how many BLE sensors to acquire or the default.
func (c *Config) GetBLECount() int {
	if len(c.BLEAddresses) > 0 {
		return len(c.BLEAddresses)
	}
	if c.BLECount == nil {
		return 2
	}
	return *c.BLECount
}

func (c *Config) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// Flag override helpers. Flags that were explicitly set on the command line
// replace the corresponding config value.

// SetSerialPort overrides the serial port path.
func (c *Config) SetSerialPort(v string) { c.SerialPort = &v }

// SetBaudRate overrides the serial baud rate.
func (c *Config) SetBaudRate(v int) { c.BaudRate = &v }

// SetYawMode overrides the yaw normalization mode.
func (c *Config) SetYawMode(v string) { c.YawMode = &v }

// SetPushMode overrides the frame transport selection.
func (c *Config) SetPushMode(v bool) { c.PushMode = &v }

// SetOnlineOnly overrides the online-only publishing gate.
func (c *Config) SetOnlineOnly(v bool) { c.OnlineOnly = &v }

// SetWorkspace overrides the workspace selection.
func (c *Config) SetWorkspace(v string) { c.Workspace = &v }
