// Package c2prog programs the flash of Silicon Labs 8-bit microcontrollers
// over the two-wire C2 debug interface, bit-banged on two digital lines.
//
// The package is layered the same way the protocol is. Interface drives the
// clock and data lines and implements the four C2 register operations
// (write/read of the Address and Data registers) and the Programming
// Interface (PI) command protocol on top of them. Session binds an Interface
// to a device family and provides the flash operations: block read and
// write, page and device erase and the page-aligned write used to program
// arbitrary byte ranges. Programmer loads Intel HEX files and programs,
// verifies and dumps them through a Session.
//
// A command line tool is found in the cmd/c2prog directory.
package c2prog

import (
	"time"

	"github.com/pkg/errors"
)

// C2 registers.
const (
	RegDeviceID   = 0x00
	RegRevisionID = 0x01
	RegFPCTL      = 0x02
)

// FPCTL values written to halt the core.
const (
	FPCTLHalt      = 0x01
	FPCTLReset     = 0x02
	FPCTLCoreReset = 0x04
)

// Address register status bits, read back with ReadAR.
const (
	StatusOutReady = 0x01
	StatusInBusy   = 0x02
)

const (
	resetPulse = 25 * time.Microsecond
	haltSettle = 30 * time.Millisecond
)

// DeviceInfo holds the contents of the device and revision ID registers.
type DeviceInfo struct {
	DeviceID   byte
	RevisionID byte
}

// Interface is a C2 bus master. It exclusively owns the clock and data lines
// and is not safe for concurrent use.
type Interface struct {
	lines Lines
	clk   Line
	dat   Line
	cfg   Config

	// first line failure of the frame in progress
	err error
}

// NewInterface creates a bus master on lines.
func NewInterface(lines Lines, opts ...Option) *Interface {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Interface{
		lines: lines,
		clk:   lines.Clock(),
		dat:   lines.Data(),
		cfg:   cfg,
	}
}

// Init puts the bus into its idle state: clock driven high, data released
// with the pull-up enabled.
func (c *Interface) Init() error {
	c.begin()
	c.check(c.clk.SetDirection(Output))
	c.check(c.clk.Write(true))
	c.check(c.dat.SetDirection(Input))
	c.check(c.dat.SetPull(true))
	return c.end("init")
}

// Close releases the data line and closes the underlying lines.
func (c *Interface) Close() error {
	err := c.dat.SetDirection(Input)
	if cerr := c.lines.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Interface) begin() {
	c.err = nil
}

func (c *Interface) check(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Interface) end(op string) error {
	if c.err == nil {
		return nil
	}
	err := errors.Wrapf(ErrLine, "%s: %v", op, c.err)
	c.err = nil
	return err
}

func (c *Interface) settle() {
	c.cfg.Sleep(c.cfg.Settle)
}

// driveData turns the data line around to the host.
func (c *Interface) driveData() {
	c.check(c.dat.SetDirection(Output))
	c.settle()
}

// releaseData hands the data line to the target.
func (c *Interface) releaseData() {
	c.check(c.dat.SetDirection(Input))
}

func (c *Interface) setData(level bool) {
	c.check(c.dat.Write(level))
	c.settle()
}

func (c *Interface) readData() bool {
	level, err := c.dat.Read()
	c.check(err)
	return level
}

// strobe transfers one bit.
func (c *Interface) strobe() {
	c.check(c.clk.Write(false))
	c.settle()
	c.check(c.clk.Write(true))
	c.settle()
}

func (c *Interface) sendBits(v byte, n int) {
	for i := 0; i < n; i++ {
		c.setData(v&0x01 != 0)
		c.strobe()
		v >>= 1
	}
}

func (c *Interface) receiveByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v >>= 1
		c.strobe()
		if c.readData() {
			v |= 0x80
		}
	}
	return v
}

// wait polls the WAIT field until the target signals ready.
func (c *Interface) wait(retries int) bool {
	c.setData(true)
	c.releaseData()
	for try := 0; try < retries; try++ {
		c.strobe()
		if c.readData() {
			return true
		}
		c.settle()
	}
	return false
}

// Reset holds the clock low long enough to reset the target.
func (c *Interface) Reset() error {
	c.begin()
	c.releaseData()
	c.check(c.clk.Write(false))
	c.cfg.Sleep(resetPulse)
	c.check(c.clk.Write(true))
	c.settle()
	return c.end("reset")
}

// Halt resets the target and stops its core, entering programming mode.
func (c *Interface) Halt() error {
	if err := c.Reset(); err != nil {
		return err
	}
	c.cfg.Sleep(2 * c.cfg.Settle)

	if err := c.WriteAR(RegFPCTL); err != nil {
		return err
	}
	for _, v := range []byte{FPCTLReset, FPCTLCoreReset, FPCTLHalt} {
		if err := c.WriteDR(v); err != nil {
			return errors.Wrapf(err, "halt: write FPCTL %02X", v)
		}
	}
	c.cfg.Sleep(haltSettle)
	pkgLog.Debugf("target halted")
	return nil
}

// DeviceInfo reads the device and revision ID registers.
func (c *Interface) DeviceInfo() (DeviceInfo, error) {
	var info DeviceInfo
	var err error

	if info.DeviceID, err = c.ReadSFR(RegDeviceID); err != nil {
		return DeviceInfo{}, errors.Wrap(err, "read device id")
	}
	if info.RevisionID, err = c.ReadSFR(RegRevisionID); err != nil {
		return DeviceInfo{}, errors.Wrap(err, "read revision id")
	}
	return info, nil
}
