package c2prog

import "github.com/pkg/errors"

// Programming interface commands, written to the family's FPDAT register.
const (
	CommandGetVersion    = 0x01
	CommandGetDerivative = 0x02
	CommandDeviceErase   = 0x03
	CommandBlockRead     = 0x06
	CommandBlockWrite    = 0x07
	CommandPageErase     = 0x08
	CommandDirectRead    = 0x09
	CommandDirectWrite   = 0x0A
)

// deviceEraseKey must follow CommandDeviceErase for the erase to proceed.
var deviceEraseKey = [3]byte{0xDE, 0xAD, 0xA5}

// PIInfo holds the programming interface version and derivative.
type PIInfo struct {
	Version    byte
	Derivative byte
}

func (c *Interface) pollInBusy() error {
	for try := 0; try < PollInBusyRetries; try++ {
		status, err := c.ReadAR()
		if err != nil {
			return err
		}
		if status&StatusInBusy == 0 {
			return nil
		}
		c.settle()
	}
	return errors.WithMessage(ErrBusTimeout, "poll in busy")
}

func (c *Interface) pollOutReady() error {
	for try := 0; try < c.cfg.PollOutRetries; try++ {
		status, err := c.ReadAR()
		if err != nil {
			return err
		}
		if status&StatusOutReady != 0 {
			return nil
		}
		c.settle()
	}
	return errors.WithMessagef(ErrBusTimeout, "poll out ready (%d tries)", c.cfg.PollOutRetries)
}

// PIWrite writes b to the currently selected PI register and waits for the
// target to consume it.
func (c *Interface) PIWrite(b byte) error {
	if err := c.WriteDR(b); err != nil {
		return err
	}
	return c.pollInBusy()
}

// PIGet waits for the target to have a byte ready and reads it.
func (c *Interface) PIGet() (byte, error) {
	if err := c.pollOutReady(); err != nil {
		return 0, err
	}
	return c.ReadDR()
}

// PICheckOK reads a response byte and requires it to be ResponseCommandOK.
func (c *Interface) PICheckOK() error {
	return c.checkOK(0)
}

func (c *Interface) checkOK(cmd byte) error {
	resp, err := c.PIGet()
	if err != nil {
		return err
	}
	if resp != ResponseCommandOK {
		return &ResponseError{Command: cmd, Code: resp}
	}
	return nil
}

// PICommand writes cmd. If verify is set the target's response must be OK.
// Bytes that are only a part of a command, such as addresses and lengths,
// are written without verify since the target does not answer them.
func (c *Interface) PICommand(cmd byte, verify bool) error {
	if err := c.PIWrite(cmd); err != nil {
		return err
	}
	if !verify {
		return nil
	}
	return c.checkOK(cmd)
}

// PIQuery runs cmd, verifies the response and returns the result byte that
// follows it.
func (c *Interface) PIQuery(cmd byte) (byte, error) {
	if err := c.PICommand(cmd, true); err != nil {
		return 0, err
	}
	return c.PIGet()
}
