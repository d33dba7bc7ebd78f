package witimu

import (
	"context"
	"fmt"
	"time"

	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// settleDelay is the wait after each configuration write. The sensors need
// time to commit before accepting the next frame.
const settleDelay = 100 * time.Millisecond

// baudCodes maps serial baud rates to the sensor's RegBaud selector values.
var baudCodes = map[int]uint16{
	4800:   0x01,
	9600:   0x02,
	19200:  0x03,
	38400:  0x04,
	57600:  0x05,
	115200: 0x06,
}

// rateCodes maps output rates in Hz to the sensor's RegRate selector values.
// Sub-1Hz rates exist on the sensor but have no use on the rig.
var rateCodes = map[int]uint16{
	1:   0x03,
	2:   0x04,
	5:   0x05,
	10:  0x06,
	20:  0x07,
	50:  0x08,
	100: 0x09,
	200: 0x0B,
}

// RegisterWriter is the bus surface configuration writes need.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, addr byte, reg uint16, value uint16) error
}

// Configurator applies sensor configuration using the unlock, write, save
// sequence the devices require. Each step is a function 0x06 write.
type Configurator struct {
	bus   RegisterWriter
	clock timeutil.Clock
}

// NewConfigurator creates a Configurator over bus.
func NewConfigurator(bus RegisterWriter) *Configurator {
	return &Configurator{bus: bus, clock: timeutil.RealClock{}}
}

func (c *Configurator) writeConfig(ctx context.Context, addr byte, reg uint16, value uint16) error {
	if err := c.bus.WriteRegister(ctx, addr, RegKey, unlockValue); err != nil {
		return fmt.Errorf("unlock 0x%02X: %w", addr, err)
	}
	c.clock.Sleep(settleDelay)

	if err := c.bus.WriteRegister(ctx, addr, reg, value); err != nil {
		return fmt.Errorf("write register 0x%02X on 0x%02X: %w", reg, addr, err)
	}
	c.clock.Sleep(settleDelay)

	if err := c.bus.WriteRegister(ctx, addr, RegSave, 0); err != nil {
		return fmt.Errorf("save configuration on 0x%02X: %w", addr, err)
	}
	c.clock.Sleep(settleDelay)
	return nil
}

// SetAddress changes a sensor's bus address. The device answers on the new
// address after the save completes.
func (c *Configurator) SetAddress(ctx context.Context, addr, newAddr byte) error {
	if newAddr == 0 || newAddr > 0x7F {
		return fmt.Errorf("invalid bus address 0x%02X: must be 0x01..0x7F", newAddr)
	}
	return c.writeConfig(ctx, addr, RegAddr, uint16(newAddr))
}

// SetBaud changes a sensor's serial baud rate. The port must be reopened at
// the new rate afterwards.
func (c *Configurator) SetBaud(ctx context.Context, addr byte, baud int) error {
	code, ok := baudCodes[baud]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	return c.writeConfig(ctx, addr, RegBaud, code)
}

// SetRate changes a sensor's output rate in Hz.
func (c *Configurator) SetRate(ctx context.Context, addr byte, hz int) error {
	code, ok := rateCodes[hz]
	if !ok {
		return fmt.Errorf("unsupported output rate %dHz", hz)
	}
	return c.writeConfig(ctx, addr, RegRate, code)
}
